package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"delivery/internal/config"
	"delivery/internal/handler"
	"delivery/internal/infra/db"
	"delivery/internal/infra/ratelimit"
	infraRepo "delivery/internal/infra/repository"
	"delivery/internal/logger"
	"delivery/internal/server"
	"delivery/internal/usecase"
	auth "delivery/internal/usecase/auth_usecase"
	"delivery/internal/validator"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.GoEnv, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, gormDB, log); err != nil {
			return err
		}
	}

	//Repository（GORM実装）生成
	repos := infraRepo.NewRepos(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	idGen := auth.UUIDGenerator{}
	clock := auth.SystemClock{}
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{
		MemoryKiB: cfg.Argon2MemoryKiB,
		Time:      cfg.Argon2Time,
		Threads:   cfg.Argon2Threads,
	})

	checks := map[string]handler.HealthCheck{
		"postgres": func(ctx context.Context) error { return db.Ping(ctx, gormDB) },
	}
	// redisが落ちてもログイン制限がfail-openになるだけなので必須にしない
	optional := map[string]handler.HealthCheck{}

	// REDIS_ADDRが無ければ試行制限なし
	var limiter auth.LoginLimiter = auth.NoopLimiter{}
	if cfg.RedisAddr != "" {
		rdb := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		rl := ratelimit.NewRedisLoginLimiter(rdb, cfg.LoginMaxAttempts, cfg.LoginLockWindow)
		limiter = rl
		optional["redis"] = rl.Ping
		log.Info("login throttling enabled", zap.Int("max_attempts", cfg.LoginMaxAttempts), zap.Duration("window", cfg.LoginLockWindow))
	}

	//Usecase生成
	creds, err := auth.NewCredentialStore(repos.Users(), txm, hasher, validator.PasswordPolicy{MinLength: cfg.PasswordMinLength}, clock)
	if err != nil {
		return fmt.Errorf("init credential store: %w", err)
	}
	authenticator, err := auth.NewAuthenticator(auth.TokenConfig{
		Secret:    []byte(cfg.JWTSecret),
		Algorithm: cfg.JWTAlgorithm,
		AccessTTL: cfg.AccessTokenTTL(),
		Issuer:    cfg.JWTIssuer,
	}, repos.Users(), clock, idGen)
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}
	loginUC := auth.NewLoginUsecase(creds, authenticator, repos.Users(), repos.RefreshTokens(), txm, limiter, idGen, clock, cfg.RefreshTokenTTL, log)

	orderUC := usecase.NewOrderUsecase(txm, repos)
	productUC := usecase.NewProductUsecase(txm, repos.Products())
	adminOrderUC := usecase.NewAdminOrderUsecase(repos)

	//Handler生成
	e := server.New(log, server.Options{AllowOrigins: cfg.FEURL}, server.Routes{
		Resolver:     authenticator,
		Health:       handler.NewHealthHandler(checks, optional, log),
		Auth:         handler.NewAuthHandler(creds, loginUC, authenticator, cfg.RefreshTokenTTL, cfg.IsProd(), log),
		Products:     handler.NewProductHandler(productUC),
		Orders:       handler.NewOrderHandler(orderUC),
		AdminOrders:  handler.NewAdminOrderHandler(adminOrderUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		AdminUsers:   handler.NewAdminUserHandler(creds, log),
	})

	//Server起動
	return server.Run(ctx, e, listenAddr(cfg.Port), log)
}

func listenAddr(port string) string {
	if port != "" && port[0] == ':' {
		return port
	}
	return ":" + port
}
