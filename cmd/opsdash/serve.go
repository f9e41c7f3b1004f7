package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rpattn/opsdash/internal/api"
	"github.com/rpattn/opsdash/internal/db"

	"github.com/spf13/cobra"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if serveMigrate {
			if err := db.RunMigrations(a.cfg.Database, a.logger); err != nil {
				a.logger.Error("migrations failed, continuing without them", "error", err)
			} else if err := a.registry.Load(ctx); err != nil {
				a.logger.Warn("using default schemas", "error", err)
			}
		}

		if _, err := a.service.RefreshMetadata(ctx); err != nil {
			a.logger.Warn("initial metadata refresh failed", "error", err)
		}

		router := api.NewRouter(a.service, a.registry, a.exporter, api.Options{
			CORSOrigins:    a.cfg.Server.CORSOrigins,
			MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		}, a.logger.With("component", "http"))

		server := &http.Server{
			Addr:         a.cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("starting server", "addr", a.cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}
		a.logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.logger.Info("server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Apply pending migrations before serving")
}
