// Command campusauth-server runs the campusAuth engine behind a small JSON
// API. With no Redis address it starts an in-process miniredis, which is
// enough for local development and demos.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	campusAuth "github.com/MrEthical07/campusAuth"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/password"
	"github.com/MrEthical07/campusAuth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a TOML config file; defaults plus CAMPUSAUTH_* env when empty")
		sqlSessions = flag.Bool("sql-sessions", false, "keep refresh tokens and 2FA state in the SQL database instead of Redis")
		seedAdmin   = flag.String("seed-admin", "", "create an admin with this username if absent; password from CAMPUSAUTH_SEED_PASSWORD")
	)
	flag.Parse()

	if err := run(*configPath, *sqlSessions, *seedAdmin); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, sqlSessions bool, seedAdmin string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := campusAuth.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx, store.Migrations()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, closeRedis, err := connectRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRedis()

	users := store.NewUsers(db)
	builder := campusAuth.New().
		WithConfig(cfg).
		WithUsers(users).
		WithRelations(store.NewRelations(db)).
		WithRedis(rdb).
		WithMailer(logMailer{logger: logger}).
		WithAuditSink(campusAuth.NewSlogSink(logger)).
		WithLogger(logger).
		WithPermissions(defaultPermissions).
		WithRoles(defaultRoles)
	if sqlSessions {
		builder = builder.
			WithRefreshTokens(store.NewRefreshTokens(db)).
			WithTwoFactor(store.NewTwoFactor(db))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if seedAdmin != "" {
		if err := ensureAdmin(ctx, users, cfg.Password, seedAdmin, os.Getenv("CAMPUSAUTH_SEED_PASSWORD")); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newServer(engine, logger).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "database", cfg.Database.Driver, "sql_sessions", sqlSessions)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadConfig(path string) (campusAuth.Config, error) {
	if path != "" {
		return campusAuth.LoadConfig(path)
	}

	cfg := campusAuth.DefaultConfig()
	if err := campusAuth.ApplyEnvOverrides(&cfg); err != nil {
		return campusAuth.Config{}, err
	}
	if len(cfg.JWT.PrivateKey) == 0 && cfg.JWT.SigningMethod == "hs256" {
		// Tokens will not survive a restart.
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return campusAuth.Config{}, err
		}
		cfg.JWT.PrivateKey = key
		slog.Warn("no JWT secret configured, using an ephemeral key")
	}
	if err := cfg.Validate(); err != nil {
		return campusAuth.Config{}, err
	}
	return cfg, nil
}

func connectRedis(cfg campusAuth.RedisConfig) (redis.UniversalClient, func(), error) {
	if cfg.Addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		slog.Warn("no redis address configured, using in-process miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ensureAdmin creates the admin account once. An existing username is left
// untouched.
func ensureAdmin(ctx context.Context, users *store.Users, pc campusAuth.PasswordConfig, username, pw string) error {
	if _, err := users.FindByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("find admin: %w", err)
	}

	if res := pc.Policy().Validate(pw); !res.Valid {
		return fmt.Errorf("seed password: %w", &campusAuth.PolicyViolationError{Violations: res.Errors})
	}
	h, err := password.NewBcrypt(pc.BcryptCost)
	if err != nil {
		return err
	}
	hash, err := h.Hash(pw)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@localhost",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Save(ctx, u); err != nil {
		return fmt.Errorf("save admin: %w", err)
	}
	slog.Info("admin seeded", "user_id", u.ID, "username", username)
	return nil
}

type logMailer struct {
	logger *slog.Logger
}

// Send logs the message instead of delivering it.
func (m logMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("mail", "to", to, "subject", subject, "body", body)
	return nil
}
