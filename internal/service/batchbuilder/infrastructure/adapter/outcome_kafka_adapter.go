// internal/service/batchbuilder/infrastructure/adapter/outcome_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"flashpromo/internal/pkg/mq"
	"flashpromo/internal/service/batchbuilder/domain/port"
)

// OutcomeKafkaAdapter 实现了 port.OutcomeNotifier 接口，按会话 id 分区，保证同一会话的结果有序。
type OutcomeKafkaAdapter struct {
	writer *kafka.Writer
}

func NewOutcomeKafkaAdapter(writer *kafka.Writer) *OutcomeKafkaAdapter {
	return &OutcomeKafkaAdapter{writer: writer}
}

func (a *OutcomeKafkaAdapter) Notify(ctx context.Context, outcome port.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, a.writer, []byte(outcome.SessionID), payload)
}

// Close 关闭底层的Kafka writer。
func (a *OutcomeKafkaAdapter) Close() error {
	return a.writer.Close()
}
