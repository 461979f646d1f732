package fakeclock_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-pdf-session/clock/fakeclock"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := fakeclock.New(start)

	var fired []string
	c.AfterFunc(10*time.Second, func() { fired = append(fired, "ten") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "five") })
	stopped := c.AfterFunc(7*time.Second, func() { fired = append(fired, "seven") })
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	c.Advance(6 * time.Second)
	require.Equal(t, []string{"five"}, fired)
	require.Len(t, c.Pending(), 1)

	c.Advance(4 * time.Second)
	require.Equal(t, []string{"five", "ten"}, fired)
	require.Empty(t, c.Pending())
	require.Equal(t, start.Add(10*time.Second), c.Now())
}

func TestClockFunc(t *testing.T) {
	fixed := time.Unix(42, 0)
	c := fakeclock.New(fixed)
	require.Equal(t, fixed, c.Now())

	c.Set(fixed.Add(time.Minute))
	require.Equal(t, fixed.Add(time.Minute), c.Now())
}
