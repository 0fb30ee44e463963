package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-portal-auth/activitymap"
	redisledger "github.com/goliatone/go-portal-auth/adapters/redis"
	authsentry "github.com/goliatone/go-portal-auth/adapters/sentry"
	"github.com/goliatone/go-portal-auth/config"
	"github.com/goliatone/go-portal-auth/mail"
	"github.com/goliatone/go-portal-auth/middleware/ratelimit"
	"github.com/goliatone/go-portal-auth/middleware/tokenware"
	"github.com/goliatone/go-portal-auth/repository"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

type App struct {
	config   *config.Config
	logger   *glog.BaseLogger
	db       *bun.DB
	repo     auth.RepositoryManager
	tracker  *auth.AttemptTracker
	gate     *auth.AuthenticationGate
	resets   *auth.ResetTokenFlow
	limiter  *ratelimit.Limiter
	srv      router.Server[*fiber.App]
	fiberApp *fiber.App
	closers  []func() error
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("authd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	log := lgr.GetLogger("app")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	fmt.Println("============")
	fmt.Println(print.MaybeHighlightJSON(cfg.Redacted()))
	fmt.Println("============")

	app := &App{config: cfg, logger: lgr}
	defer app.Close()

	steps := []func(context.Context, *App) error{
		WithSentry,
		WithPersistence,
		WithAuth,
		WithHTTPServer,
	}

	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			log.Error("startup failed", "error", err)
			app.Close()
			os.Exit(1)
		}
	}

	go app.tracker.Run(ctx, cfg.Lockout.GetSweepEvery())
	go app.limiter.Run(ctx, cfg.Lockout.GetSweepEvery())

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.srv.Serve(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("http server stopped", "error", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		if err := app.fiberApp.ShutdownWithTimeout(cfg.Server.GetShutdownTimeout()); err != nil {
			log.Error("http shutdown", "error", err)
		}
	}
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	return config.Load(ctx, os.Getenv("AUTH_CONFIG_PATH"))
}

func WithSentry(_ context.Context, app *App) error {
	cfg := app.config.Sentry
	if err := authsentry.Init(cfg.DSN, cfg.Environment); err != nil {
		return err
	}
	if cfg.Enabled() {
		app.closers = append(app.closers, func() error {
			authsentry.Flush()
			return nil
		})
	}
	return nil
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.config.Persistence

	db, err := repository.Open(ctx, cfg.Dialect, cfg.DSN)
	if err != nil {
		return err
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	app.repo = auth.NewRepositoryManager(db)
	if err := app.repo.Validate(); err != nil {
		return err
	}

	if err := app.repo.EnsureSchema(ctx); err != nil {
		return err
	}

	admin := app.config.Admin
	if !admin.Enabled() {
		return nil
	}

	user, created, err := repository.SeedAdmin(ctx, app.repo.Users(), repository.AdminSeed{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
		Role:     admin.Role,
	}, app.hasher())
	if err != nil {
		return err
	}

	if created {
		app.GetLogger("seed").Info("admin account created", "username", user.Username)
	}
	return nil
}

func WithAuth(ctx context.Context, app *App) error {
	cfg := app.config

	codec, err := auth.NewTokenCodec(cfg.Auth.GetSigningKey(),
		auth.WithSessionTTL(cfg.Auth.GetSessionTTL()),
		auth.WithResetTTL(cfg.Auth.GetResetTTL()),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience...),
		auth.WithCodecLogger(app.GetLogger("tokens")),
	)
	if err != nil {
		return err
	}

	authorities, err := cfg.AuthorityTable()
	if err != nil {
		return err
	}

	app.tracker = auth.NewAttemptTracker(
		auth.WithThreshold(cfg.Lockout.Threshold),
		auth.WithAttemptTTL(cfg.Lockout.GetAttemptTTL()),
		auth.WithCapacity(cfg.Lockout.Capacity),
		auth.WithTrackerLogger(app.GetLogger("lockout")),
	)

	users := app.repo.Users()

	sinks := []auth.ActivitySink{
		auth.TrackLogins(users),
		activitymap.Sink(app.GetLogger("activity")),
	}
	if cfg.Sentry.Enabled() {
		sinks = append(sinks, authsentry.NewSink(nil))
	}
	activity := auth.MultiActivitySink(sinks...)

	ledger, err := app.resetLedger(ctx)
	if err != nil {
		return err
	}

	mailer, err := app.mailer()
	if err != nil {
		return err
	}

	composer, err := mail.NewTemplateComposer()
	if err != nil {
		return err
	}

	app.resets = auth.NewResetTokenFlow(codec, users, mailer,
		auth.WithFrontendURL(cfg.Auth.FrontendURL),
		auth.WithLedger(ledger),
		auth.WithComposer(composer),
		auth.WithPasswordHasher(app.hasher()),
		auth.WithResetLogger(app.GetLogger("resets")),
		auth.WithResetActivitySink(activity),
	)

	verifier := auth.NewPasswordVerifier(users).WithLogger(app.GetLogger("verifier"))

	app.gate = auth.NewAuthenticationGate(users, verifier, app.tracker, codec, authorities,
		auth.WithGateLogger(app.GetLogger("gate")),
		auth.WithGateActivitySink(activity),
	)

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.config

	app.limiter = ratelimit.NewLimiter(ratelimit.Config{
		Limit: rate.Limit(cfg.Lockout.LoginRateLimit),
		Burst: cfg.Lockout.LoginRateBurst,
	})

	controller := auth.NewAuthController(app.gate, app.resets,
		auth.WithControllerLogger(app.GetLogger("http")),
		auth.WithTokenHeader(cfg.Auth.TokenHeader),
		auth.WithPrincipalKey(cfg.Auth.ContextKey),
		auth.WithControllerDebug(cfg.Auth.Debug),
	)

	app.srv = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app.fiberApp = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      "authd",
			ErrorHandler: auth.FiberErrorHandler,
		}))
		app.fiberApp.Use(recover.New())
		app.fiberApp.Use(path.Join(cfg.Server.PrefixPath, controller.Routes.Login), app.limiter.Handler())
		return app.fiberApp
	})

	app.srv.Router().WithLogger(app.GetLogger("router"))

	protected := tokenware.New(tokenware.Config{
		Authenticator: app.gate,
		ContextKey:    cfg.Auth.ContextKey,
		TokenLookup:   cfg.Auth.TokenLookup,
		AuthScheme:    cfg.Auth.AuthScheme,
	})

	auth.RegisterAuthRoutes(app.srv.Router().Group(cfg.Server.PrefixPath), controller, protected)

	return nil
}

func (a *App) resetLedger(ctx context.Context) (auth.ResetLedger, error) {
	cfg := a.config.Redis
	if !cfg.Enabled() {
		return a.repo.PasswordResets(), nil
	}

	client, err := redisledger.Connect(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	return redisledger.NewResetLedger(client, redisledger.WithPrefix(cfg.Prefix)), nil
}

func (a *App) mailer() (auth.Mailer, error) {
	cfg := a.config.SMTP
	if !cfg.Enabled() {
		a.GetLogger("mail").Warn("SMTP not configured, reset emails are logged only")
		return mail.NewLogMailer(a.GetLogger("mail")), nil
	}

	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		FromName: cfg.FromName,
	}, mail.WithSMTPLogger(a.GetLogger("mail")))
}

func (a *App) hasher() auth.PasswordHasher {
	cost := a.config.Auth.BcryptCost
	if cost == 0 {
		return auth.HashPassword
	}
	return func(password string) (string, error) {
		return auth.HashPasswordWithCost(password, cost)
	}
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.GetLogger("app").Error("close", "error", err)
		}
	}
	a.closers = nil
}
