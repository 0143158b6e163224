// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，每个服务只读取自己关心的部分。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
	Builder BuilderConfig `yaml:"builder"`
	Offer   OfferConfig   `yaml:"offer"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
	// Ports 按服务名配置监听端口
	Ports map[string]int `yaml:"ports"`
}

// PortFor 返回服务的监听端口，环境变量 PORT 优先
func (a AppConfig) PortFor(serviceName string, fallback int) int {
	if v, err := strconv.Atoi(getEnv("PORT", "")); err == nil && v > 0 {
		return v
	}
	if p, ok := a.Ports[serviceName]; ok && p > 0 {
		return p
	}
	return fallback
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	// DataID 非空时从 Nacos 配置中心拉取并覆盖本地配置
	DataID string `yaml:"dataId"`
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	OutcomeTopic  string   `yaml:"outcomeTopic"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

type MySQLConfig struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int    `yaml:"maxConns"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

// BuilderConfig 是 batch-builder-service 的配置。
type BuilderConfig struct {
	Store             string        `yaml:"store"` // redis | memory
	SessionTTL        time.Duration `yaml:"sessionTTL"`
	SubmitTimeout     time.Duration `yaml:"submitTimeout"`
	OfferServiceName  string        `yaml:"offerServiceName"`
	OfferServiceURL   string        `yaml:"offerServiceURL"`
	FolderServiceName string        `yaml:"folderServiceName"`
	FolderServiceURL  string        `yaml:"folderServiceURL"`
	Catalog           CatalogConfig `yaml:"catalog"`
}

type CatalogConfig struct {
	MechanicDimension string            `yaml:"mechanicDimension"`
	LabelTemplate     string            `yaml:"labelTemplate"`
	MaxPermutations   int               `yaml:"maxPermutations"`
	Dimensions        []DimensionConfig `yaml:"dimensions"`
}

type DimensionConfig struct {
	Key    string        `yaml:"key"`
	Label  string        `yaml:"label"`
	Values []ValueConfig `yaml:"values"`
}

type ValueConfig struct {
	Key     string             `yaml:"key"`
	Label   string             `yaml:"label"`
	Presets map[string]float64 `yaml:"presets"`
}

// OfferConfig 是 offer-service 的配置。
type OfferConfig struct {
	IdempotencyTTL time.Duration  `yaml:"idempotencyTTL"`
	LockTimeout    time.Duration  `yaml:"lockTimeout"`
	MaxBatchSize   int            `yaml:"maxBatchSize"`
	Policies       []PolicyConfig `yaml:"policies"`
}

// PolicyConfig 是一条 CEL 规则，Expr 结果为 false 时拒绝对应字段。
type PolicyConfig struct {
	Name   string `yaml:"name"`
	Field  string `yaml:"field"`
	Expr   string `yaml:"expr"`
	Reason string `yaml:"reason"`
}

var currentConfig atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置，Init 之前返回默认配置。
func GetCurrentConfig() *Config {
	if c := currentConfig.Load(); c != nil {
		return c
	}
	return defaultConfig()
}

func setCurrentConfig(c *Config) {
	currentConfig.Store(c)
}

// LoadConfig 解析 YAML 并补齐默认值。
func LoadConfig(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyEnvOverrides(cfg)
	fillDefaults(cfg)
	return cfg, nil
}

// LoadConfigFile 读取本地配置文件，文件不存在时只使用默认值和环境变量。
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("config file not found, using defaults and env")
			return LoadConfig(nil)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return LoadConfig(data)
}

func defaultConfig() *Config {
	cfg := &Config{}
	fillDefaults(cfg)
	return cfg
}

func fillDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Infra.Jaeger.Endpoint == "" {
		cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	}
	if cfg.Infra.Nacos.ServerAddrs == "" {
		cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	}
	if cfg.Infra.Nacos.Group == "" {
		cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	}
	if len(cfg.Infra.Redis.Addrs) == 0 {
		cfg.Infra.Redis.Addrs = []string{"localhost:6379"}
	}
	if len(cfg.Infra.Kafka.Brokers) == 0 {
		cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Infra.Kafka.OutcomeTopic == "" {
		cfg.Infra.Kafka.OutcomeTopic = "batch-outcomes"
	}
	if cfg.Infra.MySQL.MaxConns == 0 {
		cfg.Infra.MySQL.MaxConns = 20
	}
	if cfg.Infra.Zookeeper.SessionTimeout == 0 {
		cfg.Infra.Zookeeper.SessionTimeout = 10 * time.Second
	}
	if cfg.Builder.Store == "" {
		cfg.Builder.Store = "redis"
	}
	if cfg.Builder.SessionTTL == 0 {
		cfg.Builder.SessionTTL = 2 * time.Hour
	}
	if cfg.Builder.SubmitTimeout == 0 {
		cfg.Builder.SubmitTimeout = 15 * time.Second
	}
	if cfg.Builder.OfferServiceName == "" {
		cfg.Builder.OfferServiceName = "offer-service"
	}
	if cfg.Builder.FolderServiceName == "" {
		cfg.Builder.FolderServiceName = cfg.Builder.OfferServiceName
	}
	if cfg.Builder.Catalog.MaxPermutations == 0 {
		cfg.Builder.Catalog.MaxPermutations = 64
	}
	if cfg.Offer.IdempotencyTTL == 0 {
		cfg.Offer.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Offer.LockTimeout == 0 {
		cfg.Offer.LockTimeout = 10 * time.Second
	}
	if cfg.Offer.MaxBatchSize == 0 {
		cfg.Offer.MaxBatchSize = 200
	}
}

// applyEnvOverrides 让部署环境覆盖文件中的基础设施地址。
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		cfg.Infra.Nacos.Enabled, _ = strconv.ParseBool(v)
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		cfg.Infra.Redis.Addrs = splitList(v)
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("MYSQL_ADDR"); ok {
		cfg.Infra.MySQL.Addr = v
	}
	if v, ok := os.LookupEnv("MYSQL_PASSWORD"); ok {
		cfg.Infra.MySQL.Password = v
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = splitList(v)
	}
	if v, ok := os.LookupEnv("OFFER_SERVICE_URL"); ok {
		cfg.Builder.OfferServiceURL = v
	}
	if v, ok := os.LookupEnv("BUILDER_STORE"); ok {
		cfg.Builder.Store = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.App.LogLevel = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
