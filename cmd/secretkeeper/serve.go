package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	googleoauth "golang.org/x/oauth2/google"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	sk "github.com/panyam/secretkeeper"
	"github.com/panyam/secretkeeper/oauth2"
	"github.com/panyam/secretkeeper/stores/fs"
	"github.com/panyam/secretkeeper/stores/gae"
	gormstore "github.com/panyam/secretkeeper/stores/gorm"
	"github.com/panyam/secretkeeper/stores/redisstore"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the secretkeeper web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = logFormat
			}

			log := newLogger(os.Stdout, cfg.Logging)
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
	return cmd
}

func newLogger(w io.Writer, cfg LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore returns the configured account store and a func releasing its resources
func openStore(ctx context.Context, cfg StoreConfig) (sk.AccountStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "fs":
		return fs.NewFSAccountStore(cfg.Path), noop, nil
	case "sqlite", "postgres":
		var dialector gorm.Dialector
		if cfg.Driver == "sqlite" {
			dialector = sqlite.Open(cfg.DSN)
		} else {
			dialector = postgres.Open(cfg.DSN)
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return gormstore.NewAccountStore(db), sqlDB.Close, nil
	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create datastore client: %w", err)
		}
		return gae.NewAccountStore(client, cfg.Namespace), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// newSessions builds the scs manager, backed by Redis when configured
func newSessions(ctx context.Context, cfg SessionsConfig, secure bool) (*scs.SessionManager, func() error, error) {
	sessions := scs.New()
	sessions.Lifetime = cfg.Lifetime
	sessions.Cookie.Name = cfg.CookieName
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	sessions.Cookie.Secure = secure
	if cfg.RedisURL == "" {
		return sessions, func() error { return nil }, nil
	}
	client, err := redisstore.NewClient(ctx, redisstore.Config{URL: cfg.RedisURL})
	if err != nil {
		return nil, nil, err
	}
	sessions.Store = redisstore.NewSessionStore(client, cfg.RedisPrefix)
	return sessions, client.Close, nil
}

// newApp wires the app and returns the top level handler
// resolveStateKey returns the key that signs provider login state: the
// configured one, then SECRETKEEPER_STATE_KEY, then a random key that only
// lives as long as this process.
func resolveStateKey(configured string, log *slog.Logger) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv("SECRETKEEPER_STATE_KEY")); key != "" {
		return key, nil
	}
	key, err := sk.GenerateSecureToken()
	if err != nil {
		return "", err
	}
	log.Warn("no state key configured, using a random key for this process; provider logins in progress will not survive a restart")
	return key, nil
}

func newApp(ctx context.Context, cfg *Config, store sk.AccountStore, sessions *scs.SessionManager, registry *prometheus.Registry, log *slog.Logger) (*sk.App, http.Handler, error) {
	var metrics *sk.Metrics
	if cfg.Metrics.Enabled {
		metrics = sk.NewMetrics(registry)
	}

	directory := sk.NewDirectory(store)
	directory.Logger = log
	policy := sk.DefaultSignupPolicy()
	policy.MinPasswordLength = cfg.Auth.MinPasswordLength

	secrets := sk.NewSecretManager(store)
	secrets.Logger = log

	sessionManager := sk.NewSessionManager(sessions, store)
	sessionManager.Logger = log

	stateKey, err := resolveStateKey(cfg.Auth.StateKey, log)
	if err != nil {
		return nil, nil, err
	}

	app := &sk.App{
		Sessions:  sessionManager,
		Directory: directory,
		Secrets:   secrets,
		Local:     &sk.LocalAuth{Directory: directory, SignupPolicy: &policy, Logger: log},
		State:     &sk.StateCodec{SecretKey: stateKey, SecureCookie: cfg.Server.SecureCookies},
		Metrics:   metrics,
		Logger:    log,
	}

	gh := oauth2.NewGithubVerifier(cfg.Auth.Github.ClientID, cfg.Auth.Github.ClientSecret, cfg.Auth.Github.CallbackURL)
	if gh.Configured() {
		app.Github = sk.NewProviderStrategy(sk.ProviderGithub, gh, directory)
		app.Github.Logger = log
	}
	google := oauth2.NewBaseOAuth2(sk.ProviderGoogle, cfg.Auth.Google.ClientID, cfg.Auth.Google.ClientSecret, cfg.Auth.Google.CallbackURL, googleoauth.Endpoint)
	if google.Configured() {
		verifier, err := oauth2.NewGoogleVerifier(ctx, google.ClientId, google.ClientSecret, google.CallbackURL)
		if err != nil {
			return nil, nil, err
		}
		app.Google = sk.NewProviderStrategy(sk.ProviderGoogle, verifier, directory)
		app.Google.Logger = log
	}
	app.EnsureDefaults()

	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle(cfg.Metrics.Path, sk.MetricsHandler(registry))
	}
	mux.Handle("/", app.Handler())
	return app, mux, nil
}

func serve(ctx context.Context, cfg *Config, log *slog.Logger) (err error) {
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeStore()) }()

	sessions, closeSessions, err := newSessions(ctx, cfg.Sessions, cfg.Server.SecureCookies)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeSessions()) }()

	registry := prometheus.NewRegistry()
	app, handler, err := newApp(ctx, cfg, store, sessions, registry, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()
	log.Info("starting secretkeeper",
		slog.String("addr", cfg.Server.Addr),
		slog.String("store", cfg.Store.Driver),
		slog.Bool("google", app.Google != nil),
		slog.Bool("github", app.Github != nil),
	)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
