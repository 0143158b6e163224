// internal/service/offer/domain/offer.go
package domain

import "time"

// OfferStatus 定义了优惠的生命周期状态。
type OfferStatus string

const (
	StatusScheduled OfferStatus = "SCHEDULED" // 已创建，等待上线
	StatusActive    OfferStatus = "ACTIVE"    // 进行中
	StatusExpired   OfferStatus = "EXPIRED"   // 已过期
)

// Offer 是一条已持久化的限时优惠。
type Offer struct {
	ID            string
	BatchID       string
	Position      int // 在批次中的顺序，与请求中的草稿顺序一致
	MerchantID    string
	PermutationID string
	Title         string
	Product       string
	Label         string
	FolderID      string
	Draft         Draft // 创建时的完整条款
	Status        OfferStatus
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

// Batch 是一次批量创建。
// 同一个幂等 token 只会对应一个 Batch，重复请求返回第一次的结果。
type Batch struct {
	ID          string
	Token       string
	MerchantID  string
	Fingerprint string // 草稿内容的哈希，用来识别“同 token 不同内容”的请求
	OfferIDs    []string
	CreatedAt   time.Time
}

// Folder 是商户整理优惠用的活动文件夹。
type Folder struct {
	ID         string
	MerchantID string
	Name       string
}

// NewOffer 根据草稿创建一条待上线的优惠，有时长的优惠会计算过期时间
func NewOffer(id, batchID, merchantID string, position int, draft Draft, now time.Time) *Offer {
	o := &Offer{
		ID:            id,
		BatchID:       batchID,
		Position:      position,
		MerchantID:    merchantID,
		PermutationID: draft.PermutationID,
		Title:         draft.Title,
		Product:       draft.Product,
		Label:         draft.Label,
		FolderID:      draft.FolderID,
		Draft:         draft,
		Status:        StatusScheduled,
		CreatedAt:     now,
	}
	if draft.DurationHours > 0 {
		expires := now.Add(time.Duration(draft.DurationHours) * time.Hour)
		o.ExpiresAt = &expires
	}
	return o
}

// IsLive 检查优惠当前是否在有效期内（非终态）。
func (o *Offer) IsLive(now time.Time) bool {
	if o.Status == StatusExpired {
		return false
	}
	return o.ExpiresAt == nil || now.Before(*o.ExpiresAt)
}
