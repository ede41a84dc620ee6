package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"hireline/internal/app"
	"hireline/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr, basePath, publicPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(viper.GetString("log-format"), viper.GetString("log-level"))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("HIRELINE_JWT_SECRET is required for bearer auth")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.Open(ctx, app.Options{
				Workspace: viper.GetString("workspace"),
				TenantID:  viper.GetString("tenant"),
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			handler, err := server.New(server.Config{
				Engine:     rt.Engine,
				BasePath:   basePath,
				PublicPath: publicPath,
				Logger:     logger,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: viper.GetBool("allow-legacy-headers"),
					Logger:                 logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("serving hireline api",
					"addr", addr,
					"base_path", basePath,
					"public_path", publicPath,
					"tenant", rt.Config.Tenant.ID)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				logger.Info("shutting down")
				return srv.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "internal API base path")
	cmd.Flags().StringVar(&publicPath, "public-path", "/public/onboarding", "candidate onboarding base path")
	cmd.Flags().Bool("allow-legacy-headers", false, "accept X-Actor-Id headers without a token")
	cmd.Flags().String("log-format", "text", "log format: text or json")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	for _, name := range []string{"allow-legacy-headers", "log-format", "log-level"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}
