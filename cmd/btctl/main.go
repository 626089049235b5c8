package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-buildtracker/client"
	"github.com/goliatone/go-buildtracker/config"
	"github.com/goliatone/go-buildtracker/provider/supabase"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

// cli holds the wiring shared by all commands
type cli struct {
	config   *config.ClientConfig
	logger   *glog.BaseLogger
	store    *client.FileCredentialStore
	backend  *supabase.Client
	notifier *buildtracker.Broadcaster
	session  *client.Session
	resolver buildtracker.Resolver
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	app := &cli{}

	root := &cobra.Command{
		Use:           "btctl",
		Short:         "BuildTracker command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}

	root.AddCommand(
		newLoginCommand(app),
		newLogoutCommand(app),
		newWhoamiCommand(app),
		newWatchCommand(app),
	)

	return root
}

func (c *cli) setup() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	c.config = cfg
	c.logger = newLogger(cfg.LogLevel)

	path := cfg.CredentialsPath
	if path == "" {
		if path, err = client.DefaultCredentialsPath(); err != nil {
			return err
		}
	}
	c.store = client.NewFileCredentialStore(path).WithEndpoint(cfg.Endpoint)

	sbCfg := supabase.DefaultConfig(cfg.Endpoint, cfg.AnonKey)

	c.backend, err = supabase.NewClient(sbCfg)
	if err != nil {
		return err
	}
	c.backend.WithLogger(c.logger.GetLogger("supabase"))

	profiles, err := supabase.NewProfileFinder(sbCfg)
	if err != nil {
		return err
	}
	profiles.WithLogger(c.logger.GetLogger("profiles"))

	c.notifier = buildtracker.NewBroadcaster().WithLogger(c.logger.GetLogger("notifier"))

	c.session = client.NewSession(c.store, c.backend, c.backend).
		WithLogger(c.logger.GetLogger("session")).
		WithNotifier(c.notifier)

	sessions := buildtracker.NewSessionClient(c.session).
		WithLogger(c.logger.GetLogger("session")).
		WithNotifier(c.notifier)

	c.resolver = &sessionResolver{
		session: c.session,
		next:    buildtracker.NewIdentityResolver(sessions, profiles).WithLogger(c.logger.GetLogger("identity")),
	}

	c.logger.GetLogger("cli").Debug("client configured", "endpoint", cfg.Endpoint, "credentials", c.store.Path())

	return nil
}

// sessionResolver attaches the stored access token so profile reads go out
// as the signed in user
type sessionResolver struct {
	session *client.Session
	next    buildtracker.Resolver
}

func (r *sessionResolver) ResolveIdentity(ctx context.Context) buildtracker.Identity {
	return r.next.ResolveIdentity(r.session.Context(ctx))
}

func newLogger(level string) *glog.BaseLogger {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("btctl"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	default:
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithName("btctl"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
