package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/semcache"
	"github.com/ferro-labs/semcache/internal/logging"
	"github.com/ferro-labs/semcache/internal/version"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the caching HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logging.Setup(cfg.Log.Level, cfg.Log.Format)

			adapter, backend, err := semcache.Build(*cfg)
			if err != nil {
				return fmt.Errorf("build adapter: %w", err)
			}
			defer func() { _ = backend.Close() }()

			var corsOrigins []string
			if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
				corsOrigins = strings.Split(origins, ",")
			}

			addr := cfg.Server.Addr
			if p := os.Getenv("PORT"); p != "" {
				addr = ":" + p
			}
			srv := &http.Server{
				Addr:         addr,
				Handler:      newRouter(adapter, corsOrigins),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				logging.Logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logging.Logger.Error("shutdown error", "error", err.Error())
				}
			}()

			logging.Logger.Info("semcache listening",
				"version", version.Short(),
				"addr", addr,
				"provider", adapter.Provider().Name(),
				"cache", cfg.Cache.Backend,
				"accounting", cfg.Accounting.Enabled,
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			logging.Logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default $"+configEnv+")")
	return cmd
}
