// internal/service/offer/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"
	"encoding/json"

	"flashpromo/internal/service/offer/domain"
)

// FromDomainOffer 将领域模型转换为数据库模型
func FromDomainOffer(o *domain.Offer) (*OfferModel, error) {
	terms, err := json.Marshal(o.Draft)
	if err != nil {
		return nil, err
	}
	m := &OfferModel{
		ID:            o.ID,
		BatchID:       o.BatchID,
		Position:      o.Position,
		MerchantID:    o.MerchantID,
		PermutationID: o.PermutationID,
		Title:         o.Title,
		Product:       o.Product,
		Label:         o.Label,
		FolderID:      o.FolderID,
		OfferType:     o.Draft.OfferType,
		Terms:         string(terms),
		DurationHours: o.Draft.DurationHours,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
	}
	if o.ExpiresAt != nil {
		m.ExpiresAt = sql.NullTime{Time: *o.ExpiresAt, Valid: true}
	}
	return m, nil
}

// FromDomainBatch 将批次转换为数据库模型，优惠单独写入
func FromDomainBatch(b *domain.Batch) *OfferBatchModel {
	return &OfferBatchModel{
		ID:          b.ID,
		Token:       b.Token,
		MerchantID:  b.MerchantID,
		Fingerprint: b.Fingerprint,
		CreatedAt:   b.CreatedAt,
	}
}

// ToDomainBatch 将数据库模型转换为领域模型，offerIDs 需按 position 排好序
func ToDomainBatch(m *OfferBatchModel, offerIDs []string) *domain.Batch {
	if m == nil {
		return nil
	}
	return &domain.Batch{
		ID:          m.ID,
		Token:       m.Token,
		MerchantID:  m.MerchantID,
		Fingerprint: m.Fingerprint,
		OfferIDs:    offerIDs,
		CreatedAt:   m.CreatedAt,
	}
}

// ToDomainFolder 将数据库模型转换为领域模型
func ToDomainFolder(m *FolderModel) domain.Folder {
	return domain.Folder{ID: m.ID, MerchantID: m.MerchantID, Name: m.Name}
}
