// internal/service/batchbuilder/application/notifier.go
package application

import (
	"context"
	"errors"

	"flashpromo/internal/service/batchbuilder/domain/port"
)

// MultiNotifier 把同一个结果分发给多个通知通道（Kafka、WebSocket）
type MultiNotifier []port.OutcomeNotifier

func (m MultiNotifier) Notify(ctx context.Context, outcome port.Outcome) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
