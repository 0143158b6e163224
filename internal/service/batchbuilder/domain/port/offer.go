// internal/service/batchbuilder/domain/port/offer.go
package port

import (
	"context"

	"flashpromo/internal/service/batchbuilder/domain"
)

// BatchCreateRequest 是一次批量创建请求，整批要么全部创建，要么全部拒绝
type BatchCreateRequest struct {
	IdempotencyToken string              `json:"idempotencyToken"`
	MerchantID       string              `json:"merchantId,omitempty"`
	Drafts           []domain.OfferDraft `json:"drafts"`
}

// BatchCreateResult 中的 id 顺序与草稿顺序一致
type BatchCreateResult struct {
	CreatedIDs []string `json:"createdIds"`
	// Replayed 表示服务端识别出重复 token，返回的是第一次创建的结果
	Replayed bool `json:"-"`
}

// OfferService 定义了与 Offer 服务交互的接口。
// 失败时返回 *domain.SubmissionError。
type OfferService interface {
	BatchCreate(ctx context.Context, req *BatchCreateRequest) (*BatchCreateResult, error)
}
