package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashpromo/internal/pkg/bootstrap"
)

func TestCatalogFromConfig(t *testing.T) {
	catalog, err := CatalogFromConfig(bootstrap.CatalogConfig{
		MechanicDimension: "mechanic",
		MaxPermutations:   16,
		Dimensions: []bootstrap.DimensionConfig{
			{Key: "mechanic", Values: []bootstrap.ValueConfig{{Key: "percentage"}, {Key: "bogo", Presets: map[string]float64{"buyQuantity": 2}}}},
			{Key: "duration", Values: []bootstrap.ValueConfig{{Key: "3d", Presets: map[string]float64{"durationHours": 72}}}},
		},
	})
	require.NoError(t, err)
	assert.Len(t, catalog.Dimensions, 2)
	assert.Equal(t, 16, catalog.MaxPermutations)
	assert.Equal(t, 2.0, catalog.Dimensions[0].ValueOptions[1].Presets["buyQuantity"])

	_, err = CatalogFromConfig(bootstrap.CatalogConfig{
		MechanicDimension: "mechanic",
		Dimensions:        []bootstrap.DimensionConfig{{Key: "mechanic", Values: []bootstrap.ValueConfig{{Key: "cashback"}}}},
	})
	assert.Error(t, err)
}
