package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/chat-relay/config"
	"github.com/cwrk-planet/chat-relay/internal/memstore"
	"github.com/cwrk-planet/chat-relay/internal/postgres"
	"github.com/cwrk-planet/chat-relay/internal/redisx"
	"github.com/cwrk-planet/chat-relay/internal/retry"
	"github.com/cwrk-planet/chat-relay/internal/security"
	"github.com/cwrk-planet/chat-relay/internal/sqlite"
	"github.com/cwrk-planet/chat-relay/internal/store"
	"github.com/cwrk-planet/chat-relay/pkg/logger"
)

type stores struct {
	messages store.MessageStore
	users    store.UserStore
	close    func() error
}

func initLogger(cfg config.Logging) *slog.Logger {
	var lvl slog.Level
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			lvl = slog.LevelInfo
		}
	}

	return logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Env),
		Service:   cfg.Service,
		Version:   cfg.Version,
		Level:     lvl,
		Backend:   logger.Backend(cfg.Backend),
		AddSource: cfg.AddSource,
		Debug:     cfg.Debug,
	})
}

// openStores выбирает backend по store.driver
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
			ApplicationName: cfg.Logging.Service,
		}, retry.DefaultPolicy)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		return &stores{
			messages: db.Messages,
			users:    db.Users,
			close:    db.Close,
		}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath, cfg.Logging.Debug)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		slog.Info("store ready", "driver", "sqlite", "path", cfg.Store.SQLitePath)

		return &stores{
			messages: sqlite.NewMessageRepository(db),
			users:    sqlite.NewUserRepository(db),
			close:    func() error { return sqlite.Close(db) },
		}, nil

	case "memory":
		slog.Warn("store is in-memory, history and accounts are lost on restart")
		return &stores{
			messages: memstore.NewMessageStore(cfg.Store.MemoryHistory),
			users:    memstore.NewUserStore(),
			close:    func() error { return nil },
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// openRedis returns nil when redis is disabled.
func openRedis(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return redisx.NewClient(ctx, redisx.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}, retry.DefaultPolicy)
}

func newSigner(cfg config.JWT) (*security.JWTSigner, error) {
	switch strings.ToUpper(cfg.Alg) {
	case "HS256":
		return security.NewHMACSigner([]byte(cfg.Secret), cfg.Issuer, cfg.Audience, cfg.AccessTTL, cfg.ClockSkew), nil
	case "RS256":
		priv, err := security.LoadRSAPrivateKeyFromPEM(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		pub, err := security.LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load public key: %w", err)
		}
		return security.NewRSASigner(priv, pub, cfg.Issuer, cfg.Audience, cfg.AccessTTL, cfg.ClockSkew), nil
	}
	return nil, errors.New("unsupported jwt alg " + cfg.Alg)
}
