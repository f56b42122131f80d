package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ineyio/flowgate/gateway"
	"github.com/ineyio/flowgate/meter"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streaming gateway",
	Long: `Start the HTTP gateway.

Endpoints:
  POST /api/analyze    stream an attack-flow analysis as server-sent events
  POST /api/vision     analyze screenshots and diagrams
  GET  /api/providers  list configured backends and their health
  GET  /ws/analyze     stream an analysis over a websocket
  GET  /health         liveness probe`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides config")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup(nil)
	if err != nil {
		return err
	}
	cfg := rt.config
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}

	gw := gateway.New(rt.registry,
		gateway.WithMeter(meter.NewLogMeter(rt.logger)),
		gateway.WithIdleTimeout(cfg.IdleTimeout),
		gateway.WithRequestTimeout(cfg.RequestTimeout),
		gateway.WithLogger(rt.logger),
	)
	srv := gateway.NewServer(cfg, gw, rt.logger)

	if def, ok := rt.registry.ResolveDefault(); ok {
		rt.logger.Info().Str("provider", def).Msg("default provider")
	} else {
		rt.logger.Warn().Msg("no provider configured; analysis requests will fail until one is")
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info().Str("addr", cfg.ListenAddr).Str("version", Version).Msg("flowgate listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-quit:
	}

	rt.logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Error().Err(err).Msg("shutdown")
		return err
	}
	rt.logger.Info().Msg("server stopped")
	return nil
}
