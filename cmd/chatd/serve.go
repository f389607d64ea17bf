package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatd/internal/httpapi"
)

const shutdownGrace = 5 * time.Second

func newServeCmd(o *rootOptions) *cobra.Command {
	var turnTimeout time.Duration
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API",
		Example: "  chatd serve --addr :8080 --model tinyllama.Q4_K_M.gguf",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			httpapi.SetTurnTimeout(turnTimeout)
			return serve(ctx, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.flags.Addr, "addr", envStr("CHATD_ADDR", ""), "HTTP listen address (default :8080)")
	f.BoolVar(&o.flags.CORS.Enabled, "cors", envBool("CHATD_CORS", false), "Enable CORS")
	f.StringVar(&o.corsOrigins, "cors-origins", envStr("CHATD_CORS_ORIGINS", ""), "Comma-separated allowed origins")
	f.Int64Var(&o.flags.MaxBodyBytes, "max-body-bytes", envInt64("CHATD_MAX_BODY_BYTES", 0), "Request body limit (default 1MiB)")
	f.DurationVar(&turnTimeout, "turn-timeout", 0, "Cancel a streamed reply after this long (0 disables)")
	return cmd
}

// serve runs the HTTP server and the initial model load until ctx ends.
func serve(ctx context.Context, o *rootOptions) error {
	a, err := o.openApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			o.log.Warn().Err(err).Msg("close")
		}
	}()

	srv := &http.Server{
		Addr:              o.cfg.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpapi.SetBaseContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.log.Info().Str("addr", srv.Addr).Str("models_dir", o.cfg.ModelsDir).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			o.log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})
	g.Go(func() error {
		if a.Models.DefaultModel() == "" {
			o.log.Info().Msg("no default model; load one with POST /models/load")
			return nil
		}
		if err := a.LoadDefault(gctx); err != nil && gctx.Err() == nil {
			// The API stays up so another model can be selected.
			o.log.Error().Err(err).Msg("default model load failed")
		}
		return nil
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				n, err := a.Rescan()
				if err != nil {
					o.log.Warn().Err(err).Msg("rescan models")
					continue
				}
				o.log.Info().Int("models", n).Msg("models rescanned")
			}
		}
	})
	return g.Wait()
}
