package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-pdf-session/authapi"
	"github.com/jrsteele09/go-pdf-session/claims"
	"github.com/jrsteele09/go-pdf-session/credentials"
	"github.com/jrsteele09/go-pdf-session/internal/config"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/jrsteele09/go-pdf-session/internal/utils"
	"github.com/jrsteele09/go-pdf-session/pdfapi"
	"github.com/jrsteele09/go-pdf-session/renewal"
	"github.com/jrsteele09/go-pdf-session/session"
	"github.com/rs/zerolog/log"
)

type command func(c config.Config, args []string) error

var commands = map[string]command{
	"login":    loginCmd,
	"register": registerCmd,
	"logout":   logoutCmd,
	"status":   statusCmd,
	"watch":    watchCmd,
	"history":  historyCmd,
}

// newController wires the controller from config and restores any stored
// session.
func newController(c config.Config) (*session.Controller, error) {
	store, err := credentials.NewFileStore(c.GetCredentialFile())
	if err != nil {
		return nil, err
	}

	logger := log.Logger.With().Str("component", "session").Logger()
	options := []session.Option{
		session.WithLogger(logger),
		session.WithRenewTimeout(c.GetRenewTimeout()),
		session.WithScheduler(renewal.New(
			renewal.WithBuffer(c.GetRenewalBuffer()),
			renewal.WithLogger(log.Logger.With().Str("component", "renewal").Logger()),
		)),
	}
	if c.GetVerifySignatures() {
		verifier := claims.NewRemoteVerifier(context.Background(), c.GetJWKSURL())
		options = append(options, session.WithDecoder(claims.NewVerifyingDecoder(verifier)))
		logger.Info().Str("jwks", c.GetJWKSURL()).Msg("verifying credential signatures")
	}

	api := authapi.New(c.GetAPIURL(), authapi.WithTimeout(c.GetHTTPTimeout()))
	ctrl, err := session.NewController(api, store, options...)
	if err != nil {
		return nil, err
	}
	ctrl.Start()
	return ctrl, nil
}

func loginCmd(c config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("login: -email is required")
	}
	secret, err := passwordOrPrompt(*password, os.Stdin)
	if err != nil {
		return err
	}

	ctrl, err := newController(c)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Login(context.Background(), *email, secret); err != nil {
		return errors.Wrapf(err, "%s", utils.FirstNonEmpty(ctrl.Snapshot().Error, "login"))
	}
	printSession(os.Stdout, ctrl.Snapshot())
	return nil
}

func registerCmd(c config.Config, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *name == "" {
		return errors.New("register: -name and -email are required")
	}
	secret, err := passwordOrPrompt(*password, os.Stdin)
	if err != nil {
		return err
	}

	ctrl, err := newController(c)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Register(context.Background(), *name, *email, secret); err != nil {
		return errors.Wrapf(err, "%s", utils.FirstNonEmpty(ctrl.Snapshot().Error, "register"))
	}
	fmt.Println(ctrl.Snapshot().Success)
	return nil
}

func logoutCmd(c config.Config, _ []string) error {
	ctrl, err := newController(c)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.Logout()
	fmt.Println("Logged out.")
	return nil
}

func statusCmd(c config.Config, _ []string) error {
	ctrl, err := newController(c)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	printSession(os.Stdout, ctrl.Snapshot())
	return nil
}

func watchCmd(c config.Config, _ []string) error {
	displayAppname(c.GetAppName())

	ctrl, err := newController(c)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	snap := ctrl.Snapshot()
	if !snap.Authenticated() {
		return errors.Wrapf(errors.ErrNoSession, "watch: log in first")
	}
	printSession(os.Stdout, snap)

	ended := make(chan struct{})
	var once sync.Once
	unsubscribe := ctrl.Subscribe(func(snap session.Snapshot) {
		if snap.Success != "" {
			fmt.Println(snap.Success)
		}
		if snap.State == session.StateAuthenticated {
			printSession(os.Stdout, snap)
		}
		if !snap.Authenticated() && snap.LogoutReason.Forced() {
			fmt.Println(snap.Error)
			once.Do(func() { close(ended) })
		}
	})
	defer unsubscribe()

	waitForStopSignal(ended)
	return nil
}

func historyCmd(c config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", pdfapi.DefaultHistoryLimit, "maximum number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctrl, err := newController(c)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	httpClient := ctrl.HTTPClient(http.DefaultTransport)
	httpClient.Timeout = c.GetHTTPTimeout()
	entries, err := pdfapi.NewHistoryClient(c.GetAPIURL(), httpClient).List(context.Background(), *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tSOURCE\tLOCATION\tWHEN")
	for _, e := range entries {
		location := strings.Trim(utils.Value(e.City)+", "+utils.Value(e.Country), ", ")
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Action, e.Source, location, e.Timestamp.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func printSession(w io.Writer, snap session.Snapshot) {
	if !snap.Authenticated() {
		fmt.Fprintln(w, "Not logged in.")
		return
	}
	sess := snap.Session
	fmt.Fprintf(w, "Logged in as %s", sess.Claims.Subject)
	if sess.Role != "" {
		fmt.Fprintf(w, " (%s)", sess.Role)
	}
	fmt.Fprintf(w, ", session expires %s\n", sess.Claims.Expiry().Local().Format(time.DateTime))
}

func passwordOrPrompt(password string, in io.Reader) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrapf(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
