package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mv-advisor/internal/api"
	"mv-advisor/internal/service/advisor"
)

func newServeCmd(a *app) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the advisor HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listenAddr == "" {
				listenAddr = a.cfg.ListenAddr
			}

			deps := advisor.Deps{Logger: a.logger}
			if a.cfg.HasStore() {
				st, err := a.openStore()
				if err != nil {
					return err
				}
				defer st.Close() //nolint:errcheck
				deps.Store = st
			} else {
				a.logger.Info("no run store configured, persistence disabled")
			}

			h := api.NewHandler(advisor.New(deps), advisor.OptionsFromConfig(a.cfg.ECSE), a.logger)
			srv := &http.Server{
				Addr: listenAddr,
				Handler: api.NewRouter(h, api.RouterConfig{
					AllowedOrigins: a.cfg.CORSAllowedOrigins,
					RateLimit: api.RateLimitConfig{
						RequestsPerSecond: a.cfg.RateLimitRPS,
						Burst:             a.cfg.RateLimitBurst,
					},
					Logger: a.logger,
				}),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      5 * time.Minute,
				IdleTimeout:       120 * time.Second,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()
			go func() {
				<-ctx.Done()
				a.logger.Info("shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			a.logger.Info("listening", "addr", listenAddr, "env", a.cfg.Env)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides LISTEN_ADDR)")
	return cmd
}
