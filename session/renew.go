package session

import (
	"context"

	"github.com/jrsteele09/go-pdf-session/authapi"
	"github.com/jrsteele09/go-pdf-session/credentials"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/jrsteele09/go-pdf-session/internal/utils"
)

// Renew exchanges the current credential for a fresh one. While a renewal is
// in flight further calls return ErrRenewalInProgress without contacting the
// backend. Any failure ends the session.
func (c *Controller) Renew(ctx context.Context) error {
	return c.renew(ctx, "")
}

// renewalDue is handed to the scheduler. The scheduler may call it while
// c.mu is held, so the renewal itself runs on its own goroutine.
func (c *Controller) renewalDue(sessionID string) func() {
	return func() {
		go func() {
			err := c.renew(c.baseCtx, sessionID)
			switch {
			case err == nil:
			case errors.Is(err, errors.ErrRenewalInProgress), errors.Is(err, errors.ErrSuperseded),
				errors.Is(err, errors.ErrStaleResponse), errors.Is(err, context.Canceled):
				c.log.Debug().Err(err).Msg("scheduled renewal skipped")
			default:
				c.log.Warn().Err(err).Msg("scheduled renewal failed")
			}
		}()
	}
}

// renew renews the session with ID sessionID, or the current session when
// sessionID is empty.
func (c *Controller) renew(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	sess := c.session
	switch {
	case sess == nil && sessionID == "":
		c.mu.Unlock()
		return errors.ErrNoSession
	case sess == nil || (sessionID != "" && sess.ID != sessionID):
		c.mu.Unlock()
		return errors.ErrSuperseded
	case c.renewingFor == sess.ID:
		c.mu.Unlock()
		return errors.ErrRenewalInProgress
	}
	c.renewingFor = sess.ID
	c.transitionLocked(StateRenewingInBackground)
	snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.log.Debug().Str("session", sess.ID).Msg("renewing credential")
	callCtx, cancel := context.WithTimeout(ctx, c.renewTimeout)
	resp, err := c.api.Renew(callCtx, sess.Credential)
	cancel()

	c.mu.Lock()
	if c.session == nil || c.session.ID != sess.ID {
		c.mu.Unlock()
		c.log.Debug().Str("session", sess.ID).Msg("discarding renewal result for a session that has ended")
		return errors.ErrStaleResponse
	}
	c.renewingFor = ""

	if closedErr := c.baseCtx.Err(); closedErr != nil {
		// A closed controller keeps its session and stored credential.
		c.transitionLocked(StateAuthenticated)
		snap = c.publishLocked()
		c.mu.Unlock()
		c.notify(snap)
		c.log.Debug().Str("session", sess.ID).Msg("controller closed during renewal, keeping credential")
		return errors.Wrapf(closedErr, "[Controller.Renew] controller closed")
	}

	result := c.applyRenewalLocked(sess, resp, err)
	snap = c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)
	return result
}

func (c *Controller) applyRenewalLocked(prev *Session, resp *authapi.TokenResponse, err error) error {
	if err != nil {
		c.log.Warn().Err(err).Msg("credential renewal failed, logging out")
		c.endSessionLocked(LogoutReasonRenewalFailed, renewalFailureMessage(err))
		return errors.Wrapf(err, "[Controller.Renew] renewal failed")
	}

	token := utils.Value(resp.AccessToken)
	cl, err := c.decoder.Decode(token)
	if err != nil {
		c.log.Warn().Err(err).Msg("renewal returned an undecodable token, logging out")
		c.endSessionLocked(LogoutReasonInvalidSession, MsgInvalidRenewedToken)
		return errors.Wrapf(err, "[Controller.Renew] invalid token")
	}

	cred := credentials.Credential{
		Token:     token,
		TokenType: utils.FirstNonEmpty(resp.TokenType, prev.Credential.TokenType, credentials.DefaultTokenType),
	}
	c.saveLocked(cred)
	if !c.beginSessionLocked(cred, cl) {
		return errors.Wrapf(errors.ErrTokenExpired, "[Controller.Renew] renewed token")
	}
	c.errMsg = ""
	c.successMsg = MsgSessionRenewed
	c.log.Info().Time("exp", cl.Expiry()).Msg("session renewed")
	return nil
}
