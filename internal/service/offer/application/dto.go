// internal/service/offer/application/dto.go
package application

import "flashpromo/internal/service/offer/domain"

// CreateBatchRequest 是批量创建优惠的请求体
type CreateBatchRequest struct {
	IdempotencyToken string         `json:"idempotencyToken" validate:"required,max=64"`
	MerchantID       string         `json:"merchantId" validate:"max=64"`
	Drafts           []domain.Draft `json:"drafts" validate:"required,min=1"`
}

// CreateBatchResponse 是批量创建的响应体，id 顺序与草稿顺序一致
type CreateBatchResponse struct {
	BatchID    string   `json:"batchId"`
	CreatedIDs []string `json:"createdIds"`
	Replayed   bool     `json:"-"`
}

// FolderResponse 是活动文件夹
type FolderResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
