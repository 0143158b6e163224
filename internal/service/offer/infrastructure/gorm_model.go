// internal/service/offer/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"
)

// OfferBatchModel 对应数据库中的 offer_batches 表
type OfferBatchModel struct {
	ID          string `gorm:"primaryKey;type:char(36)"`
	Token       string `gorm:"uniqueIndex;type:varchar(64);not null"`
	MerchantID  string `gorm:"index;type:varchar(64)"`
	Fingerprint string `gorm:"type:char(64);not null"`
	CreatedAt   time.Time
	// 关联关系
	Offers []OfferModel `gorm:"foreignKey:BatchID"`
}

// TableName 指定 GORM 应该使用的表名
func (OfferBatchModel) TableName() string {
	return "offer_batches"
}

// OfferModel 对应数据库中的 offers 表
type OfferModel struct {
	ID            string `gorm:"primaryKey;type:char(36)"`
	BatchID       string `gorm:"index;type:char(36);not null"`
	Position      int
	MerchantID    string `gorm:"index;type:varchar(64)"`
	PermutationID string `gorm:"type:varchar(64)"`
	Title         string
	Product       string
	Label         string
	FolderID      string `gorm:"index;type:varchar(64)"`
	OfferType     string `gorm:"type:varchar(32)"`
	Terms         string `gorm:"type:json"` // 完整草稿，保留创建时的条款
	DurationHours int
	Status        string `gorm:"type:varchar(16)"`
	CreatedAt     time.Time
	ExpiresAt     sql.NullTime
}

func (OfferModel) TableName() string {
	return "offers"
}

// FolderModel 对应数据库中的 campaign_folders 表
type FolderModel struct {
	ID         string `gorm:"primaryKey;type:varchar(64)"`
	MerchantID string `gorm:"index;type:varchar(64);not null"`
	Name       string
	CreatedAt  time.Time
}

func (FolderModel) TableName() string {
	return "campaign_folders"
}
