package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

func newLoginCommand(app *cli) *cobra.Command {
	var email, password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Long: `Sign in with email and password. The session is stored in the
credentials file and refreshed automatically by later commands.

Examples:
  btctl login --email jane@example.com
  echo "$PASSWORD" | btctl login --email jane@example.com --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required", errors.CategoryBadInput).
					WithTextCode("MISSING_EMAIL")
			}

			if passwordStdin || password == "" {
				if !passwordStdin {
					fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				}
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, errors.CategoryBadInput, "read password")
				}
				password = line
			}

			ctx, cancel := commandContext(cmd, requestTimeout)
			defer cancel()

			tokens, err := app.session.SignIn(ctx, strings.TrimSpace(email), password)
			if err != nil {
				return err
			}

			if !tokens.HasSession() {
				fmt.Fprintln(cmd.OutOrStdout(), "Check your email to confirm your account, then sign in again.")
				return nil
			}

			identity := app.resolver.ResolveIdentity(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", describe(identity))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password, prompted when empty")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

func newLogoutCommand(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, requestTimeout)
			defer cancel()

			if err := app.session.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCommand(app *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the current identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, requestTimeout)
			defer cancel()

			identity := app.resolver.ResolveIdentity(ctx)

			if asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(identity))
				return nil
			}

			if !identity.IsAuthenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), describe(identity))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the identity as JSON")

	return cmd
}

func newWatchCommand(app *cli) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the identity every time it changes",
		Long: `Keep the session alive and print the identity whenever it changes,
for example after a token refresh or when the session ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			identities := buildtracker.NewIdentityContext(
				app.resolver,
				app.notifier,
				nil,
				buildtracker.WithIdentityContextLogger(app.logger.GetLogger("identity")),
			)
			defer identities.Close()

			unsubscribe := identities.Subscribe(func(state buildtracker.IdentityState) {
				if state.IsLoading {
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", time.Now().Format(time.TimeOnly), describe(state.Identity))
			})
			defer unsubscribe()

			if err := identities.Refresh(ctx); err != nil {
				return nil
			}

			if interval <= 0 {
				interval = 30 * time.Second
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := app.session.AccessToken(ctx); err != nil {
						app.logger.GetLogger("watch").Debug("token refresh skipped", "error", err)
					}
					if err := identities.Refresh(ctx); err != nil {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "how often to check the session")

	return cmd
}

func describe(identity buildtracker.Identity) string {
	if !identity.IsAuthenticated {
		return "signed out"
	}
	name := identity.Name()
	if name == "" {
		name = identity.UserID()
	}
	if email := identity.EmailAddress(); email != "" {
		return fmt.Sprintf("%s <%s>", name, email)
	}
	return name
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
