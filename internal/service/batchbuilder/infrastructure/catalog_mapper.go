// internal/service/batchbuilder/infrastructure/catalog_mapper.go
package infrastructure

import (
	"flashpromo/internal/pkg/bootstrap"
	"flashpromo/internal/service/batchbuilder/domain"
)

// CatalogFromConfig 将配置里的维度目录转换为领域模型并校验
func CatalogFromConfig(cfg bootstrap.CatalogConfig) (*domain.Catalog, error) {
	dims := make([]domain.Dimension, 0, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		values := make([]domain.Value, 0, len(d.Values))
		for _, v := range d.Values {
			values = append(values, domain.Value{Key: v.Key, Label: v.Label, Presets: v.Presets})
		}
		dims = append(dims, domain.Dimension{Key: d.Key, Label: d.Label, ValueOptions: values})
	}
	return domain.NewCatalog(dims, cfg.MechanicDimension, cfg.LabelTemplate, cfg.MaxPermutations)
}
