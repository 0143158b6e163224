// cmd/batch-builder-service/main.go
package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"flashpromo/internal/pkg/bootstrap"
	"flashpromo/internal/pkg/httpclient"
	"flashpromo/internal/pkg/mq"
	redisclient "flashpromo/internal/pkg/redis"
	"flashpromo/internal/service/batchbuilder/application"
	"flashpromo/internal/service/batchbuilder/domain"
	"flashpromo/internal/service/batchbuilder/domain/port"
	"flashpromo/internal/service/batchbuilder/infrastructure"
	"flashpromo/internal/service/batchbuilder/infrastructure/adapter"
	"flashpromo/internal/service/batchbuilder/interfaces"
)

const serviceName = "batch-builder-service"

func main() {
	cfg := bootstrap.Init(serviceName)

	catalog, err := infrastructure.CatalogFromConfig(cfg.Builder.Catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid catalog config")
	}

	var shutdown []func(ctx context.Context) error

	// 1. 选择存储和提交守卫
	var (
		store domain.SelectionStore
		guard port.SubmissionGuard
	)
	if cfg.Builder.Store == "memory" {
		store = infrastructure.NewMemoryStore(cfg.Builder.SessionTTL)
		guard = infrastructure.NewMemoryGuard()
		log.Warn().Msg("Using in-memory selection store, selections do not survive restarts")
	} else {
		rdb, err := redisclient.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		store = infrastructure.NewRedisStore(rdb, cfg.Builder.SessionTTL)
		guard = infrastructure.NewRedisGuard(rdb, 2*cfg.Builder.SubmitTimeout)
		shutdown = append(shutdown, func(context.Context) error { return rdb.Close() })
	}

	// 2. 结果通知: Kafka 给 notification-service，WebSocket 给当前页面
	hub := interfaces.NewOutcomeHub()
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OutcomeTopic)
	kafkaNotifier := adapter.NewOutcomeKafkaAdapter(writer)
	shutdown = append(shutdown, func(context.Context) error { return kafkaNotifier.Close() })
	notifier := application.MultiNotifier{kafkaNotifier, hub}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.PortFor(serviceName, 8090),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// 启用 Nacos 时通过服务发现找 offer-service，否则使用配置里的地址
			var resolver httpclient.Resolver
			if appCtx.Nacos != nil {
				resolver = appCtx.Nacos
			} else {
				resolver = httpclient.StaticResolver{
					cfg.Builder.OfferServiceName:  cfg.Builder.OfferServiceURL,
					cfg.Builder.FolderServiceName: folderURL(cfg.Builder),
				}
			}
			client := httpclient.NewClient(otel.Tracer(serviceName), resolver)

			offers := adapter.NewOfferHTTPAdapter(client, cfg.Builder.OfferServiceName)
			folders := adapter.NewFolderHTTPAdapter(client, cfg.Builder.FolderServiceName)
			submitter := application.NewBatchSubmitter(offers, cfg.Builder.SubmitTimeout)

			svc := application.NewBuilderService(catalog, store, guard, submitter, folders, notifier, otel.Tracer(serviceName))
			interfaces.NewBuilderHandler(svc).RegisterRoutes(appCtx.Router)
			hub.RegisterRoutes(appCtx.Router)
		},
		Workers:    []func(ctx context.Context) error{hub.Run},
		OnShutdown: shutdown,
	})
}

func folderURL(cfg bootstrap.BuilderConfig) string {
	if cfg.FolderServiceURL != "" {
		return cfg.FolderServiceURL
	}
	return cfg.OfferServiceURL
}
