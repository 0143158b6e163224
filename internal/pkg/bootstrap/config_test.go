package bootstrap

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Builder.Store)
	assert.Equal(t, 2*time.Hour, cfg.Builder.SessionTTL)
	assert.Equal(t, 15*time.Second, cfg.Builder.SubmitTimeout)
	assert.Equal(t, "offer-service", cfg.Builder.FolderServiceName)
	assert.Equal(t, 64, cfg.Builder.Catalog.MaxPermutations)
	assert.Equal(t, "batch-outcomes", cfg.Infra.Kafka.OutcomeTopic)
	assert.Equal(t, 200, cfg.Offer.MaxBatchSize)
}

func TestLoadConfig_ParsesFileAndEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("BUILDER_STORE", "memory")

	cfg, err := LoadConfig([]byte(`
app:
  ports:
    batch-builder-service: 9000
builder:
  sessionTTL: 30m
  catalog:
    mechanicDimension: mechanic
    dimensions:
      - key: mechanic
        values:
          - key: bogo
            presets: {buyQuantity: 1, getQuantity: 1}
offer:
  policies:
    - name: cap
      field: percentageOff
      expr: "offer.percentageOff <= 50.0"
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "memory", cfg.Builder.Store)
	assert.Equal(t, 30*time.Minute, cfg.Builder.SessionTTL)
	require.Len(t, cfg.Builder.Catalog.Dimensions, 1)
	assert.Equal(t, 1.0, cfg.Builder.Catalog.Dimensions[0].Values[0].Presets["getQuantity"])
	require.Len(t, cfg.Offer.Policies, 1)
	assert.Equal(t, "cap", cfg.Offer.Policies[0].Name)
}

func TestLoadConfig_RejectsBrokenYAML(t *testing.T) {
	_, err := LoadConfig([]byte("builder: [unterminated"))
	assert.Error(t, err)
}

func TestPortFor(t *testing.T) {
	os.Unsetenv("PORT")
	app := AppConfig{Ports: map[string]int{"offer-service": 9100}}
	assert.Equal(t, 9100, app.PortFor("offer-service", 8091))
	assert.Equal(t, 8090, app.PortFor("batch-builder-service", 8090))

	t.Setenv("PORT", "7000")
	assert.Equal(t, 7000, app.PortFor("offer-service", 8091))
}

func TestLoadConfigFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(t.TempDir() + "/missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.App.LogLevel)
}
