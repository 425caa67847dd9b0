package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gsessions "github.com/gorilla/sessions"
	"github.com/habitkeep/habitkeep/internal"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/db"
	"github.com/habitkeep/habitkeep/internal/db/migrate"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/email/brevo"
	"github.com/habitkeep/habitkeep/internal/habit"
	"github.com/habitkeep/habitkeep/internal/krypto"
	"github.com/habitkeep/habitkeep/internal/store/jsonfile"
	"github.com/habitkeep/habitkeep/internal/store/sqlite"
	"github.com/habitkeep/habitkeep/internal/web"
	"github.com/habitkeep/habitkeep/internal/web/sessions"
	"github.com/habitkeep/habitkeep/migrations"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	// A .env file is optional, the environment itself may be configured.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load .env file", "error", err)
		return 1
	}

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	credStore, habitStore, sessBackend, closeStore, err := openStore(ctx, cfg.store)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.store.driver, "error", err)
		return 1
	}
	defer closeStore()

	emailSvc := email.NewService(cfg.email.from, newSender(cfg.email, logger))

	authSvc, err := auth.NewService(credStore, emailSvc, func(err error) {
		logger.Error("async worker failed", "error", err)
	}, cfg.auth)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	habitSvc := habit.NewService(habitStore, krypto.NewUserEncryptor(cfg.masterKey), logger)

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler: web.NewServer(&web.ServerDeps{
			Logger:       logger,
			AuthService:  authSvc,
			HabitService: habitSvc,
			SessionStore: newSessionStore(cfg.session, sessBackend),
		}, web.ServerConfig{
			IdleTimeout: cfg.session.idleTimeout,
		}),
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildLocalModified", internal.BuildLocalModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	// Let async email workers finish before exiting.
	authSvc.Wait()

	if err != nil && err != http.ErrServerClosed {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

// openStore opens the configured storage backend. SQLite databases are
// migrated on startup.
func openStore(ctx context.Context, cfg storeConfig) (auth.Store, habit.Store, sessions.Backend, func() error, error) {
	switch cfg.driver {
	case "sqlite":
		sqlDB, err := db.OpenSQLite(cfg.sqliteFile, true)
		if err != nil {
			return nil, nil, nil, nil, err
		}

		_, err = migrate.RunFS(ctx, sqlDB, migrations.FS, internal.BuildRevision, time.Now())
		if err != nil {
			sqlDB.Close()
			return nil, nil, nil, nil, err
		}

		store := sqlite.New(sqlDB)
		return store, store, store, sqlDB.Close, nil
	case "jsonfile":
		store, err := jsonfile.New(cfg.jsonDir)
		if err != nil {
			return nil, nil, nil, nil, err
		}

		return store, store, store, func() error { return nil }, nil
	}

	return nil, nil, nil, nil, errors.New("unknown store driver")
}

func newSender(cfg emailConfig, logger *slog.Logger) email.Sender {
	if cfg.driver == "brevo" {
		return brevo.NewSender(&http.Client{Timeout: 10 * time.Second}, brevo.Settings{
			APIURL:     cfg.brevoURL,
			APIKey:     cfg.brevoKey,
			SenderName: cfg.senderName,
		})
	}

	return email.NewLogSender(logger)
}

// newSessionStore builds the server-side session store. Session state
// lives in the backing store, the cookie only carries an opaque id.
func newSessionStore(cfg sessionConfig, backend sessions.Backend) *sessions.Store {
	keyPairs := [][]byte{cfg.hashKey.SecretValue()}
	if len(cfg.blockKey.SecretValue()) > 0 {
		keyPairs = append(keyPairs, cfg.blockKey.SecretValue())
	}

	store := sessions.NewServerStore(backend, &gsessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}, cfg.idleTimeout, keyPairs...)

	return sessions.NewStore(store)
}
