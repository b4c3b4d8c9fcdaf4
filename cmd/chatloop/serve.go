package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction loop over HTTP",
		Long: `Start the HTTP server. Runs are accepted on POST /api/v1/agent/run and
executed one at a time. SIGINT or SIGTERM shuts the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if port != 0 {
				a.cfg.Server.Port = port
			}

			// Load the model up front so the first request does not pay for it.
			status := a.engine.Init(ctx)
			a.logger.Info(ctx, "embedding engine ready",
				zap.Bool("model_loaded", status.ModelLoaded),
				zap.String("model", status.Model),
				zap.Int("dimension", status.Dimension),
				zap.String("fallback_reason", status.FallbackReason))

			srv, err := http.NewServer(a.loop, a.engine, a.logger.Underlying(), &http.Config{
				Host:         a.cfg.Server.Host,
				Port:         a.cfg.Server.Port,
				Version:      version,
				RequireModel: a.cfg.Agent.RequireModel,
				BodyLimit:    a.cfg.Server.BodyLimit,
			})
			if err != nil {
				return fmt.Errorf("creating http server: %w", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info(ctx, "shutting down", zap.Duration("timeout", a.cfg.Server.ShutdownTimeout.Duration()))
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down http server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server.http_port")
	return cmd
}
