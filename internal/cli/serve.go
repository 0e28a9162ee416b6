package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Leganyst/cleaning-platform/internal/config"
	"github.com/Leganyst/cleaning-platform/internal/httpapi"
	"github.com/Leganyst/cleaning-platform/internal/logger"
	"github.com/Leganyst/cleaning-platform/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn("close resources", zap.Error(err))
		}
	}()

	// HTTP.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(
		httpapi.NewHandler(a.svc, cfg.Location(), log.Named("http")),
		httpapi.RouterConfig{
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			CORSOrigins:    cfg.CORSOrigins,
		},
		log.Named("http"),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "cleaning-core"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC: health-check и reflection для операторов.
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		healthSrv.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(sctx)
		grpcServer.GracefulStop()
		if werr := a.dispatcher.Wait(sctx); werr != nil {
			log.Warn("pending notifications dropped", zap.Error(werr))
		}
		if terr := shutdownTracing(sctx); terr != nil {
			log.Warn("tracer shutdown", zap.Error(terr))
		}
		return err
	})
	return g.Wait()
}
