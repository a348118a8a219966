// Command server runs the authsite web application.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authsite/authsite/internal/auth"
	"github.com/authsite/authsite/internal/config"
	"github.com/authsite/authsite/internal/oauth2"
	"github.com/authsite/authsite/internal/session"
	"github.com/authsite/authsite/internal/store"
	"github.com/authsite/authsite/internal/store/gae"
	"github.com/authsite/authsite/internal/store/mem"
	mongostore "github.com/authsite/authsite/internal/store/mongo"
	"github.com/authsite/authsite/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identities, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	sessions := session.NewManager(cfg.SessionSecret, "authsite", session.DefaultLifetime)
	resolver := auth.NewResolver(identities)

	var google, github *oauth2.Exchanger
	if cfg.Google.ClientID != "" {
		google = oauth2.NewGoogle(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.CallbackURL("google"))
	}
	if cfg.Github.ClientID != "" {
		github = oauth2.NewGithub(cfg.Github.ClientID, cfg.Github.ClientSecret, cfg.CallbackURL("github"))
	}

	handler, err := web.New(log, sessions, resolver, google, github)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", slog.Int("port", cfg.Port), slog.String("store", cfg.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(format string) *slog.Logger {
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}

// openStore opens the configured identity store backend. The returned
// cleanup closes the backend's client, when it has one.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, client, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				log.Warn("mongodb disconnect failed", slog.String("error", err.Error()))
			}
		}
		return s, cleanup, nil

	case config.BackendDatastore:
		s, err := gae.New(ctx, cfg.DatastoreProjectID, cfg.DatastoreNamespace, cfg.DatastoreCredentials)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := s.Close(); err != nil {
				log.Warn("datastore close failed", slog.String("error", err.Error()))
			}
		}
		return s, cleanup, nil

	case config.BackendMemory:
		log.Warn("using in-memory identity store; data is lost on restart")
		return mem.New(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
