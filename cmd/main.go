package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/cwrk-planet/chat-relay/config"
	"github.com/cwrk-planet/chat-relay/internal/accounts"
	"github.com/cwrk-planet/chat-relay/internal/auth"
	"github.com/cwrk-planet/chat-relay/internal/metrics"
	"github.com/cwrk-planet/chat-relay/internal/presence"
	"github.com/cwrk-planet/chat-relay/internal/ratelimit"
	"github.com/cwrk-planet/chat-relay/internal/redisx"
	"github.com/cwrk-planet/chat-relay/internal/relay"
	"github.com/cwrk-planet/chat-relay/internal/rooms"
	"github.com/cwrk-planet/chat-relay/internal/security"
	grpcx "github.com/cwrk-planet/chat-relay/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-relay/internal/transport/http"
	"github.com/cwrk-planet/chat-relay/internal/transport/ws"
)

const (
	shutdownTimeout    = 15 * time.Second
	mirrorCallTimeout  = 2 * time.Second
	revokedKeyPrefix   = auth.DefaultRevocationPrefix
	loginRateKeyPrefix = "login_rate"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("starting chat-relay",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Driver)

	ctx := context.Background()

	// --- stores ---
	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	// --- redis (optional) ---
	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	var revoked auth.RevocationList = auth.NewMemoryRevocationList()
	var loginLimit ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.Security.Login.RateLimit, cfg.Security.Login.RateWindow)
	trackerOpts := []presence.Option{presence.WithLogger(logger)}
	if rdb != nil {
		revoked = auth.NewRedisRevocationList(rdb, revokedKeyPrefix)
		loginLimit = ratelimit.NewRedisLimiter(rdb, loginRateKeyPrefix, cfg.Security.Login.RateLimit, cfg.Security.Login.RateWindow)
		trackerOpts = append(trackerOpts, presence.WithMirror(
			presence.NewRedisMirror(rdb, cfg.Presence.MirrorTTL), mirrorCallTimeout, cfg.Presence.MirrorTTL/2))
		logger.Info("redis enabled", "addr", cfg.Redis.Addr)
	}

	// --- security ---
	signer, err := newSigner(cfg.Security.JWT)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	authn := auth.NewAuthenticator(signer, revoked, logger)

	// --- core ---
	tracker := presence.NewTracker(trackerOpts...)
	registry := rooms.NewRegistry()
	relayer := relay.New(st.messages, registry, tracker, relay.Config{
		MaxContentLength: cfg.Chat.MaxContentLength,
		AppendTimeout:    cfg.Store.AppendTimeout,
	}, relay.WithLogger(logger))

	accountSvc := accounts.NewService(
		st.users,
		signer,
		revoked,
		loginLimit,
		security.BcryptConfig{Cost: cfg.Security.Password.BcryptCost, MinLength: cfg.Security.Password.MinLength},
		accounts.LoginPolicy{MaxAttempts: cfg.Security.Login.MaxAttempts, LockDuration: cfg.Security.Login.LockDuration},
		nil,
	)

	if err := metrics.RegisterPresence(prometheus.DefaultRegisterer, tracker.Len); err != nil {
		logger.Warn("register presence gauge", "err", err)
	}
	if err := metrics.RegisterRooms(prometheus.DefaultRegisterer, func() int { return len(registry.Rooms()) }); err != nil {
		logger.Warn("register rooms gauge", "err", err)
	}

	// --- WS ---
	wsServer := ws.NewServer(authn, tracker, registry, relayer, ws.Config{
		PingInterval:   cfg.WS.PingInterval,
		WriteTimeout:   cfg.WS.WriteTimeout,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		MessageBurst:   cfg.WS.MessageBurst,
		MessageRefill:  cfg.WS.MessageRefill,
		TouchOnPong:    cfg.Presence.TouchOnPong,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Accounts:       accountSvc,
		Verifier:       authn,
		History:        st.messages,
		Rooms:          registry,
		Presence:       tracker,
		WS:             wsServer.HandleWS,
		HistoryLimit:   cfg.Chat.HistoryLimit,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC health ---
	grpcSrv := grpcx.NewServer(cfg.GRPC.Addr, logger)

	// --- run ---
	runCtx, stopRun := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(grpcSrv.ListenAndServe)
	g.Go(func() error {
		err := wsServer.RunSweeper(gctx, cfg.Presence.SweepInterval, cfg.Presence.MaxIdle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// падение любого сервера запускает тот же graceful shutdown, что и сигнал
	go func() {
		if err := g.Wait(); err != nil {
			logger.Error("server error", "err", err)
			if p, ferr := os.FindProcess(os.Getpid()); ferr == nil {
				_ = p.Signal(syscall.SIGTERM)
			}
		}
	}()

	// --- graceful shutdown ---
	// одна операция: порядок важен (health -> ws -> http -> grpc -> stores)
	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
		"chat-relay": func(ctx context.Context) error {
			return shutdown(ctx, logger, grpcSrv, wsServer, httpSrv, stopRun, func() error {
				return errors.Join(st.close(), redisx.Close(rdb))
			})
		},
	})

	exitCode := <-wait
	logger.Info("stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}

func shutdown(
	ctx context.Context,
	logger *slog.Logger,
	grpcSrv *grpcx.Server,
	wsServer *ws.Server,
	httpSrv *http.Server,
	stopRun context.CancelFunc,
	closeStores func() error,
) error {
	logger.Info("shutting down", "ws_connections", wsServer.ActiveConnections())

	grpcSrv.Drain()

	var errs []error
	if err := wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	grpcSrv.Stop(ctx)
	stopRun()

	if err := closeStores(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
