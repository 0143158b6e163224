// internal/service/batchbuilder/application/submission.go
package application

import (
	"context"
	"errors"
	"time"

	"flashpromo/internal/service/batchbuilder/domain"
	"flashpromo/internal/service/batchbuilder/domain/port"
)

// BatchSubmitter 负责把整批草稿一次性发给 Offer 服务，并把各种失败归类为 transient / rejected。
type BatchSubmitter struct {
	offers  port.OfferService
	timeout time.Duration
}

// NewBatchSubmitter timeout <= 0 时只受调用方 context 控制
func NewBatchSubmitter(offers port.OfferService, timeout time.Duration) *BatchSubmitter {
	return &BatchSubmitter{offers: offers, timeout: timeout}
}

// Submit 只发一次请求，绝不按草稿拆分
func (b *BatchSubmitter) Submit(ctx context.Context, req *port.BatchCreateRequest) (*port.BatchCreateResult, *domain.SubmissionError) {
	if len(req.Drafts) == 0 {
		return nil, domain.NewRejectedError("empty_batch", "a batch needs at least one draft", nil)
	}

	callCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := b.offers.BatchCreate(callCtx, req)
	submissionDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		if len(result.CreatedIDs) != len(req.Drafts) {
			// 服务端违反了整批语义，按可重试处理，用同一个 token 重试会拿到正确的结果
			return nil, domain.NewTransientError("partial_response", "offer service returned an unexpected number of ids", nil)
		}
		return result, nil
	}
	return nil, classify(err)
}

func classify(err error) *domain.SubmissionError {
	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		return subErr
	}
	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewTransientError("cancelled", "the submission was cancelled before the offer service answered", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewTransientError("timeout", "the offer service did not answer in time", err)
	default:
		return domain.NewTransientError("unavailable", "the offer service could not be reached", err)
	}
}
