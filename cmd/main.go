package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/karaoke-service/config"
	"github.com/cwrk-planet/karaoke-service/internal/events"
	"github.com/cwrk-planet/karaoke-service/internal/logger"
	"github.com/cwrk-planet/karaoke-service/internal/postgres"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
	"github.com/cwrk-planet/karaoke-service/internal/security"
	"github.com/cwrk-planet/karaoke-service/internal/service"
	"github.com/cwrk-planet/karaoke-service/internal/sqlite"
	"github.com/cwrk-planet/karaoke-service/internal/telemetry"
	grpcx "github.com/cwrk-planet/karaoke-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/karaoke-service/internal/transport/http"
	"github.com/cwrk-planet/karaoke-service/internal/transport/ws"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	configPath := pflag.String("config", "", "path to config.yaml")
	pflag.Parse()

	// --- config ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	lg := logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting karaoke-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	if err := run(cfg, lg); err != nil {
		slog.Error("karaoke-service failed", "err", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

func run(cfg *config.Config, lg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- telemetry ---
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Logging.Service,
		ServiceVersion: cfg.Logging.Version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	// --- storage ---
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// --- events: WS hub, через Redis если настроен ---
	hub := ws.NewHub()
	var (
		publisher events.Publisher = hub
		bridge    *events.RedisBridge
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		bridge = events.NewRedisBridge(rdb, cfg.Redis.ChannelPrefix, hub, lg.With("component", "redis-bridge"))
		publisher = bridge
	}

	// --- services ---
	ctl := service.NewController(store, service.Options{
		Publisher: publisher,
		Logger:    lg.With("component", "controller"),
		RoomTTL:   cfg.Session.RoomTTL,
		JoinTTL:   cfg.Session.JoinTTL,
	})

	var signer *security.JWTSigner
	if cfg.Auth.JWTSecret != "" {
		signer = security.NewJWTSigner(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, 0, 30*time.Second)
	} else {
		slog.Warn("auth.jwtSecret is empty: trusting X-User-ID header")
	}

	// --- HTTP + WS ---
	wsServer := ws.NewServer(hub, ctl, cfg.Session.OpTimeout)
	deps := httpx.Deps{
		Handler:        httpx.NewHandler(ctl),
		WS:             wsServer.HandleWS,
		Store:          store,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}
	var grpcVerifier grpcx.TokenVerifier
	if signer != nil {
		deps.Verifier = signer
		grpcVerifier = signer
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpx.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC ---
	roomSession := grpcx.NewServer(ctl, grpcVerifier, hub)
	grpcServer, healthSrv := grpcx.NewGRPCServer(roomSession, cfg.Session.OpTimeout)

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})

	if bridge != nil {
		g.Go(func() error {
			if err := bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("redis bridge: %w", err)
			}
			return nil
		})
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		// HTTP и gRPC гасим параллельно, оба в пределах ShutdownTimeout
		var sg errgroup.Group
		sg.Go(func() error {
			grpcx.Stop(ctxShutdown, grpcServer, healthSrv, roomSession)
			return nil
		})
		sg.Go(func() error {
			if err := httpSrv.Shutdown(ctxShutdown); err != nil {
				// не уложились в таймаут: рвём оставшиеся соединения
				_ = httpSrv.Close()
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		})
		return sg.Wait()
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Storage) (repository.Store, error) {
	switch cfg.Driver {
	case "postgres":
		st, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ApplicationName: "karaoke-service",
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return st, nil
	}
}
