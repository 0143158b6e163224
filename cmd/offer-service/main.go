// cmd/offer-service/main.go
package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"flashpromo/internal/pkg/bootstrap"
	"flashpromo/internal/pkg/database"
	redisclient "flashpromo/internal/pkg/redis"
	"flashpromo/internal/service/offer/application"
	"flashpromo/internal/service/offer/domain"
	"flashpromo/internal/service/offer/infrastructure"
	"flashpromo/internal/service/offer/infrastructure/rule"
	"flashpromo/internal/service/offer/interfaces"
	"flashpromo/internal/zookeeper"
)

const serviceName = "offer-service"

func main() {
	cfg := bootstrap.Init(serviceName)
	var shutdown []func(ctx context.Context) error

	// 1. MySQL
	mysqlCfg := cfg.Infra.MySQL
	db, err := database.OpenMySQL(database.DSN(mysqlCfg.Addr, mysqlCfg.User, mysqlCfg.Password, mysqlCfg.Database), mysqlCfg.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo := infrastructure.NewGormOfferRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate offer tables")
	}
	shutdown = append(shutdown, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	// 2. Redis 幂等缓存
	rdb, err := redisclient.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	cache := infrastructure.NewRedisIdempotencyCache(rdb, cfg.Offer.IdempotencyTTL)
	shutdown = append(shutdown, func(context.Context) error { return rdb.Close() })

	// 3. 分布式锁，未配置 ZooKeeper 时退化为单实例
	var locker domain.Locker = infrastructure.LocalLocker{}
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		zkLocker, err := zookeeper.NewLocker(conn)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create zookeeper locker")
		}
		locker = zkLocker
		shutdown = append(shutdown, func(context.Context) error { conn.Close(); return nil })
	}

	// 4. CEL 商户规则
	policies := make([]rule.Policy, 0, len(cfg.Offer.Policies))
	for _, p := range cfg.Offer.Policies {
		policies = append(policies, rule.Policy{Name: p.Name, Field: p.Field, Expr: p.Expr, Reason: p.Reason})
	}
	engine, err := rule.NewCELPolicyEngine(policies)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile offer policies")
	}

	svc := application.NewOfferService(repo, cache, locker, engine, otel.Tracer(serviceName), cfg.Offer.MaxBatchSize, cfg.Offer.LockTimeout)
	handler := interfaces.NewOfferHandler(svc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.PortFor(serviceName, 8091),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Router)
		},
		OnShutdown: shutdown,
	})
}
