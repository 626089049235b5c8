package main

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-buildtracker/config"
	"github.com/goliatone/go-buildtracker/middleware/csrf"
	redisnotifier "github.com/goliatone/go-buildtracker/notifier/redis"
	"github.com/goliatone/go-buildtracker/provider/local"
	"github.com/goliatone/go-buildtracker/provider/supabase"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/uptrace/bun"
)

//go:embed views
var viewsFS embed.FS

type App struct {
	config   *config.Config
	db       *bun.DB
	repo     buildtracker.RepositoryManager
	backend  buildtracker.AuthBackend
	verifier buildtracker.TokenVerifier
	local    *local.Backend
	notifier buildtracker.SessionNotifier
	session  *buildtracker.RouteSession
	srv      router.Server[*fiber.App]
	logger   *glog.BaseLogger
	closers  []func() error
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.GetLogger("app").Warn("close failed", "error", err)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(err))
		os.Exit(1)
	}

	lgr := newLogger(cfg.LogLevel)

	app := &App{
		config: cfg,
		logger: lgr,
	}
	defer app.Close()

	lgr.GetLogger("config").Debug("configuration loaded", "config", print.MaybeHighlightJSON(cfg.Redacted()))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := WithPersistence(ctx, app); err != nil {
		lgr.GetLogger("app").Error("persistence setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithAuthBackend(ctx, app); err != nil {
		lgr.GetLogger("app").Error("auth backend setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithNotifier(ctx, app); err != nil {
		lgr.GetLogger("app").Error("notifier setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		lgr.GetLogger("app").Error("http server setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithRoutes(ctx, app); err != nil {
		lgr.GetLogger("app").Error("routes setup failed", "error", err)
		os.Exit(1)
	}

	app.srv.Serve(cfg.HTTPAddr)
	lgr.GetLogger("app").Info("listening", "addr", cfg.HTTPAddr, "provider", cfg.AuthProvider)

	WaitExitSignal()
}

func newLogger(level string) *glog.BaseLogger {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("app"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	default:
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithName("app"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config()

	db, err := buildtracker.OpenDB(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	app.onClose(db.Close)

	sources := []fs.FS{buildtracker.MigrationsDir()}
	if cfg.AuthProvider == config.ProviderLocal {
		sources = append(sources, local.MigrationsDir())
	}

	if err := buildtracker.Migrate(ctx, db, app.GetLogger("migrate"), sources...); err != nil {
		return err
	}

	repo := buildtracker.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	app.db = db
	app.repo = repo
	return nil
}

func WithAuthBackend(ctx context.Context, app *App) error {
	cfg := app.Config()

	switch cfg.AuthProvider {
	case config.ProviderSupabase:
		scfg := supabase.DefaultConfig(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		scfg.JWTSecret = cfg.SupabaseJWTSecret

		client, err := supabase.NewClient(scfg)
		if err != nil {
			return err
		}
		client.WithLogger(app.GetLogger("auth:supabase"))

		app.backend = client
		app.verifier = client
		if cfg.SupabaseJWTSecret != "" {
			app.verifier = supabase.NewJWTVerifier(cfg.SupabaseJWTSecret).
				WithLogger(app.GetLogger("auth:jwt"))
		}
	default:
		tokens := buildtracker.NewTokenService([]byte(cfg.SigningKey), cfg.TokenTTL, cfg.Issuer).
			WithLogger(app.GetLogger("auth:jwt"))

		backend := local.NewBackend(app.db, tokens).
			WithLogger(app.GetLogger("auth:local"))

		app.local = backend
		app.backend = backend
		app.verifier = tokens
	}

	return nil
}

func WithNotifier(ctx context.Context, app *App) error {
	cfg := app.Config()

	if cfg.RedisAddr == "" {
		app.notifier = buildtracker.NewBroadcaster().WithLogger(app.GetLogger("notifier"))
		return nil
	}

	n, err := redisnotifier.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	n.WithChannel(cfg.RedisChannel).WithLogger(app.GetLogger("notifier:redis"))

	go func() {
		if err := n.Listen(ctx); err != nil && ctx.Err() == nil {
			app.GetLogger("notifier:redis").Error("session listener stopped", "error", err)
		}
	}()

	app.onClose(n.Close)
	app.notifier = n
	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	templates, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return fmt.Errorf("unable to scope embedded templates: %w", err)
	}

	engine := django.NewFileSystem(http.FS(templates), ".html")
	for name, fn := range buildtracker.TemplateHelpers() {
		engine.AddFunc(name, fn)
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	app.srv = srv
	return nil
}

func WithRoutes(ctx context.Context, app *App) error {
	cfg := app.Config()
	r := app.srv.Router()

	profiles := buildtracker.ProfileFinder(app.repo.Profiles())
	if cfg.ProfileSource == config.ProviderSupabase {
		finder, err := supabase.NewProfileFinder(supabase.DefaultConfig(cfg.SupabaseURL, cfg.SupabaseAnonKey))
		if err != nil {
			return err
		}
		profiles = finder.WithLogger(app.GetLogger("profiles"))
	}

	sessions := buildtracker.NewSessionClient(buildtracker.NewTokenSessionSource(app.verifier)).
		WithLogger(app.GetLogger("session")).
		WithNotifier(app.notifier).
		WithBackend(app.backend)

	resolver := buildtracker.NewIdentityResolver(sessions, profiles).
		WithLogger(app.GetLogger("identity"))

	session := buildtracker.NewRouteSession(cfg, app.backend, resolver).
		WithLogger(app.GetLogger("auth:http")).
		WithNotifier(app.notifier)
	app.session = session

	if app.local != nil {
		local.RegisterRoutes(r, app.local, "/auth/v1")
	}

	var csrfKey []byte
	if cfg.CSRFKey != "" {
		csrfKey = []byte(cfg.CSRFKey)
	} else if cfg.SigningKey != "" {
		sum := sha256.Sum256([]byte("csrf:" + cfg.SigningKey))
		csrfKey = sum[:]
	}

	r.Use(mflash.New(mflash.ConfigDefault))
	r.Use(session.Middleware())
	r.Use(csrf.New(csrf.Config{
		SecureKey: csrfKey,
		Skip: func(c router.Context) bool {
			return strings.HasPrefix(c.Path(), "/auth/v1/") || strings.HasPrefix(c.Path(), "/api/")
		},
	}))

	r.Get("/csrf-token", csrf.TokenHandler(csrf.DefaultContextKey)).SetName("csrf-token.get")

	buildtracker.RegisterAuthRoutes(r,
		buildtracker.WithAuthSession(session),
		buildtracker.WithAuthLogger(app.GetLogger("auth:ctrl")),
		buildtracker.WithOnSignUp(seedProfile(app)),
	)

	guard := buildtracker.NewOwnershipGuard(resolver).
		WithLogger(app.GetLogger("ownership"))

	buildtracker.RegisterBuildRoutes(r, session.RequireIdentity(),
		buildtracker.WithBuildRepo(app.repo),
		buildtracker.WithBuildGuard(guard),
		buildtracker.WithBuildSession(session),
		buildtracker.WithBuildLogger(app.GetLogger("builds")),
	)

	return nil
}

// seedProfile creates the profile row of a new account so the builder page
// exists right after registration
func seedProfile(app *App) func(ctx context.Context, account *buildtracker.Account, fullName string) error {
	return func(ctx context.Context, account *buildtracker.Account, fullName string) error {
		_, err := app.repo.Profiles().Save(ctx, &buildtracker.Profile{
			ID:       account.ID,
			FullName: fullName,
		})
		return err
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
