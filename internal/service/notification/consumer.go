// internal/service/notification/consumer.go
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/pkg/mq"
)

// OutcomeEvent 定义了从 Kafka 接收的提交结果消息结构
type OutcomeEvent struct {
	SessionID  string   `json:"sessionId"`
	MerchantID string   `json:"merchantId"`
	BatchToken string   `json:"batchToken"`
	Succeeded  bool     `json:"succeeded"`
	CreatedIDs []string `json:"createdIds"`
	Error      *struct {
		Kind    string `json:"kind"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// MessageReader 是 kafka.Reader 中被用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutcomeConsumer 消费 batch-outcomes，把结果转成商户可读的通知。
// 短信和界面推送不在这里实现，只记录带追踪上下文的日志。
type OutcomeConsumer struct {
	reader MessageReader
	tracer trace.Tracer
}

func NewOutcomeConsumer(reader MessageReader, tracer trace.Tracer) *OutcomeConsumer {
	return &OutcomeConsumer{reader: reader, tracer: tracer}
}

// Run 循环消费消息，直到 ctx 结束。处理失败的消息记录后仍会提交，避免毒消息阻塞分区。
func (c *OutcomeConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("Outcome consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read message")
			continue
		}

		if err := c.Handle(ctx, msg); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("offset", msg.Offset).Msg("Dropping unprocessable outcome")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// Handle 处理从 Kafka 收到的单条消息，返回对应的通知文案
func (c *OutcomeConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	// 1. 从消息头中提取追踪上下文，把当前操作链接到 batch-builder 的链路上
	ctx = mq.ExtractTraceContext(ctx, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "notification-service.ProcessOutcome",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		),
	)
	defer span.End()
	ctx = logger.WithTraceID(ctx)

	var event OutcomeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	span.SetAttributes(
		attribute.String("batch.token", event.BatchToken),
		attribute.String("merchant.id", event.MerchantID),
		attribute.Bool("batch.succeeded", event.Succeeded),
	)

	message := Render(event)
	logger.Ctx(ctx).Info().
		Str("session_id", event.SessionID).
		Str("merchant_id", event.MerchantID).
		Str("batch_token", event.BatchToken).
		Msg(message)
	span.AddEvent("Notification sent successfully")
	return nil
}

// Render 生成给商户的通知文案
func Render(event OutcomeEvent) string {
	if event.Succeeded {
		return fmt.Sprintf("Your campaign batch is live: %d offers created.", len(event.CreatedIDs))
	}
	if event.Error == nil {
		return "Your campaign batch could not be created."
	}
	if event.Error.Kind == "transient" {
		return fmt.Sprintf("Your campaign batch was not created yet (%s). Your selection is saved, please retry.", event.Error.Code)
	}
	return fmt.Sprintf("Your campaign batch was rejected: %s", event.Error.Message)
}
