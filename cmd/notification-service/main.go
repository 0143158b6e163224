// cmd/notification-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"flashpromo/internal/pkg/bootstrap"
	"flashpromo/internal/pkg/mq"
	"flashpromo/internal/service/notification"
)

const serviceName = "notification-service"

func main() {
	cfg := bootstrap.Init(serviceName)

	// 启动 Kafka 消费者，HTTP 端口只提供 /healthz 和 /metrics
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OutcomeTopic, consumerGroup(cfg))
	consumer := notification.NewOutcomeConsumer(reader, otel.Tracer(serviceName))

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.PortFor(serviceName, 8083),
		Workers:     []func(ctx context.Context) error{consumer.Run},
		OnShutdown: []func(ctx context.Context) error{
			func(context.Context) error { return reader.Close() },
		},
	})
}

func consumerGroup(cfg *bootstrap.Config) string {
	if cfg.Infra.Kafka.ConsumerGroup != "" {
		return cfg.Infra.Kafka.ConsumerGroup
	}
	return "notification-group"
}
