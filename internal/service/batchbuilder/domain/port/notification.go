// internal/service/batchbuilder/domain/port/notification.go
package port

import (
	"context"
	"time"

	"flashpromo/internal/service/batchbuilder/domain"
)

// Outcome 是一次提交的结果，只产出数据，由通知层决定如何展示
type Outcome struct {
	SessionID  string                  `json:"sessionId"`
	MerchantID string                  `json:"merchantId,omitempty"`
	BatchToken string                  `json:"batchToken"`
	Succeeded  bool                    `json:"succeeded"`
	CreatedIDs []string                `json:"createdIds,omitempty"`
	Error      *domain.SubmissionError `json:"error,omitempty"`
	At         time.Time               `json:"at"`
}

// OutcomeNotifier 定义了发布提交结果的接口，实现不应阻塞调用方
type OutcomeNotifier interface {
	Notify(ctx context.Context, outcome Outcome) error
}
