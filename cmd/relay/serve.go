package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
	"github.com/dgnsrekt/overlay-relay/internal/server"
	"github.com/dgnsrekt/overlay-relay/internal/tenant"
	"github.com/dgnsrekt/overlay-relay/internal/ws"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger.Info("configuration loaded",
		zap.String("port", cfg.Server.Port),
		zap.String("tenantSource", string(cfg.Tenants.Source)),
		zap.Int("sseBufferSize", cfg.Relay.SSEBufferSize),
		zap.Int("wsBufferSize", cfg.Relay.WSBufferSize),
		zap.Duration("pingPeriod", cfg.Relay.PingPeriod),
		zap.Float64("ingestRate", cfg.Ingest.RatePerSecond),
	)

	source, err := openTenants(ctx, cfg.Tenants, logger)
	if err != nil {
		logger.Error("failed to open tenant registry", zap.Error(err))
		return err
	}
	defer func() {
		if err := source.close(); err != nil {
			logger.Warn("failed to close tenant registry", zap.Error(err))
		}
	}()

	tenants := tenant.NewReloadable(source.registry)
	var reload *server.ReloadManager
	if source.reload != nil {
		reload = server.NewReloadManager(tenants, source.reload, logger)
	}

	core := relay.New(relay.Options{Tenants: tenants, Logger: logger})

	// Context for hub lifetime
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()

	hub, err := ws.NewHub(core, ws.Options{
		BufferSize: cfg.Relay.WSBufferSize,
		PingPeriod: cfg.Relay.PingPeriod,
	}, logger)
	if err != nil {
		logger.Error("failed to create websocket hub", zap.Error(err))
		return err
	}
	go hub.Run(hubCtx)

	srv := server.NewServer(core, hub, reload, cfg, logger)
	router := server.NewRouter(srv, cfg.Server.CORSOrigin, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	logger.Info("shutting down server...")

	// Close subscribers first so streaming handlers return
	core.Shutdown()
	cancelHub()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}
