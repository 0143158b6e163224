// internal/service/offer/domain/repository.go
package domain

import "context"

// OfferRepository 定义了批次与优惠的持久化接口
type OfferRepository interface {
	// FindBatchByToken 找不到时返回 ErrBatchNotFound
	FindBatchByToken(ctx context.Context, token string) (*Batch, error)
	// CreateBatch 在一个事务里写入批次和全部优惠，token 重复时返回 ErrDuplicateToken
	CreateBatch(ctx context.Context, batch *Batch, offers []*Offer) error
	ListFolders(ctx context.Context, merchantID string) ([]Folder, error)
}

// IdempotencyCache 缓存已完成批次的结果，命中时不用访问数据库
type IdempotencyCache interface {
	Get(ctx context.Context, token string) (*Batch, error) // 未命中返回 (nil, nil)
	Put(ctx context.Context, batch *Batch) error
}

// Locker 跨实例地串行化同一个 token 的处理
type Locker interface {
	Lock(ctx context.Context, resourceID string) (unlock func() error, err error)
}

// PolicyEngine 是商户规则的评估接口，返回违反规则的字段
type PolicyEngine interface {
	Evaluate(ctx context.Context, draft *Draft) ([]FieldError, error)
}
