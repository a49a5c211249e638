package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/record_gateway/internal/auth"
	"github.com/triage-ai/palisade/services/record_gateway/internal/config"
	"github.com/triage-ai/palisade/services/record_gateway/internal/server"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthService   = "record_gateway"
	shutdownTimeout = 10 * time.Second
)

func newServeCommand(envFile *string) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record tools to MCP hosts",
		Long:  `Serve the record tools over stdio (default) or streamable HTTP with bearer API keys.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != "" {
				if err := os.Setenv("RECORD_GATEWAY_TRANSPORT", transport); err != nil {
					return err
				}
			}
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio or http (overrides RECORD_GATEWAY_TRANSPORT)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting record gateway",
		zap.String("version", Version),
		zap.Stringer("config", cfg),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.dispatcher, Version, logger)
	if err != nil {
		return err
	}

	var healthServer *health.Server
	if cfg.GRPCHealthPort != "" {
		var grpcServer *grpc.Server
		grpcServer, healthServer, err = startHealthServer(cfg.GRPCHealthPort, logger)
		if err != nil {
			return err
		}
		defer grpcServer.GracefulStop()
	}

	if cfg.OpsAddr != "" {
		ops := &http.Server{
			Addr:              cfg.OpsAddr,
			Handler:           server.OpsHandler(a.registry, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("ops server listening", zap.String("addr", cfg.OpsAddr))
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
		defer shutdownHTTP(ops, logger)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if healthServer != nil {
			healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}()

	switch cfg.Transport {
	case config.TransportHTTP:
		authn, err := buildAuthenticator(a)
		if err != nil {
			return err
		}
		return serveHTTP(ctx, cfg.HTTPAddr, srv.HTTPHandler(authn), logger)
	default:
		logger.Info("serving MCP over stdio")
		return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
}

// buildAuthenticator prefers static key hashes, then the api_keys table.
func buildAuthenticator(a *app) (auth.Authenticator, error) {
	if len(a.cfg.HTTPKeyHashes) > 0 {
		a.logger.Info("using configured API key hashes", zap.Int("keys", len(a.cfg.HTTPKeyHashes)))
		return auth.NewHashAuthenticator(a.cfg.HTTPKeyHashes, a.cfg.AuthCacheTTL())
	}
	if a.db == nil {
		return nil, errors.New("http transport needs API keys but postgres is unavailable")
	}
	a.logger.Info("using postgres API keys")
	return auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
		DB:       a.db,
		CacheTTL: a.cfg.AuthCacheTTL(),
		Logger:   a.logger,
	}), nil
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *zap.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over http", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownHTTP(httpServer, logger)
		return nil
	}
}

func shutdownHTTP(s *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown failed", zap.String("addr", s.Addr), zap.Error(err))
	}
}

// startHealthServer runs the standard gRPC health service for orchestrators
// that probe over gRPC.
func startHealthServer(port string, logger *zap.Logger) (*grpc.Server, *health.Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on health port %s: %w", port, err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc health server failed", zap.Error(err))
		}
	}()
	return grpcServer, healthServer, nil
}
