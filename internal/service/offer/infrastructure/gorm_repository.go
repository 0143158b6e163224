// internal/service/offer/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"flashpromo/internal/service/offer/domain"
)

// mysqlDuplicateEntry 是 MySQL 唯一键冲突的错误码
const mysqlDuplicateEntry = 1062

// GormOfferRepository 是 OfferRepository 的 GORM 实现
type GormOfferRepository struct {
	db *gorm.DB
}

// NewGormOfferRepository 创建一个新的 GORM 仓储实例
func NewGormOfferRepository(db *gorm.DB) *GormOfferRepository {
	return &GormOfferRepository{db: db}
}

// AutoMigrate 创建或更新表结构
func (r *GormOfferRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&OfferBatchModel{}, &OfferModel{}, &FolderModel{})
}

// FindBatchByToken 按幂等 token 查找批次，并按 position 取回优惠 id
func (r *GormOfferRepository) FindBatchByToken(ctx context.Context, token string) (*domain.Batch, error) {
	var model OfferBatchModel
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, err
	}

	var ids []string
	err = r.db.WithContext(ctx).Model(&OfferModel{}).
		Where("batch_id = ?", model.ID).
		Order("position").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ToDomainBatch(&model, ids), nil
}

// CreateBatch 在一个事务里写入批次和全部优惠，任何一条失败则整体回滚
func (r *GormOfferRepository) CreateBatch(ctx context.Context, batch *domain.Batch, offers []*domain.Offer) error {
	models := make([]*OfferModel, 0, len(offers))
	for _, o := range offers {
		m, err := FromDomainOffer(o)
		if err != nil {
			return err
		}
		models = append(models, m)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Offers").Create(FromDomainBatch(batch)).Error; err != nil {
			return err
		}
		return tx.Create(&models).Error
	})

	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return domain.ErrDuplicateToken
	}
	return err
}

// ListFolders 返回商户的文件夹，按名称排序
func (r *GormOfferRepository) ListFolders(ctx context.Context, merchantID string) ([]domain.Folder, error) {
	var models []FolderModel
	if err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	folders := make([]domain.Folder, len(models))
	for i := range models {
		folders[i] = ToDomainFolder(&models[i])
	}
	return folders, nil
}
