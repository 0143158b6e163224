// internal/pkg/nacos/client.go
package nacos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/rs/zerolog/log"
)

// Client 封装了 Nacos 命名客户端和配置客户端
type Client struct {
	namingClient naming_client.INamingClient
	configClient config_client.IConfigClient

	namespaceId string
	groupName   string
}

// ParseServerConfigs 解析 "ip1:port1,ip2:port2" 格式的地址列表
func ParseServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}
	if len(serverConfigs) == 0 {
		return nil, fmt.Errorf("no nacos server address in %q", addrs)
	}
	return serverConfigs, nil
}

// NewNacosClient 创建并返回一个新的 Nacos 客户端
func NewNacosClient(addrs string, namespaceId, groupName string) (*Client, error) {
	if namespaceId == "" {
		log.Warn().Msg("NACOS_NAMESPACE is not set. Using default public namespace.")
	}
	if groupName == "" {
		groupName = "DEFAULT_GROUP"
		log.Warn().Msgf("NACOS_GROUP is not set. Using '%s'.", groupName)
	}

	serverConfigs, err := ParseServerConfigs(addrs)
	if err != nil {
		return nil, err
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceId),
	)
	param := vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	}

	namingClient, err := clients.NewNamingClient(param)
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}
	configClient, err := clients.NewConfigClient(param)
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos config client: %w", err)
	}

	log.Info().Str("addrs", addrs).Msg("Successfully connected to Nacos.")
	return &Client{
		namingClient: namingClient,
		configClient: configClient,
		namespaceId:  namespaceId,
		groupName:    groupName,
	}, nil
}

// RegisterServiceInstance 注册一个服务实例到 Nacos
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true, // 临时节点，心跳断开后会自动摘除
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to register service with nacos: %w", err)
	}
	if !success {
		return fmt.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	log.Info().Msgf("Service '%s' registered to Nacos successfully (%s:%d)", serviceName, ip, port)
	return nil
}

// DeregisterServiceInstance 从 Nacos 注销一个服务实例
func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister service with nacos: %w", err)
	}
	log.Info().Msgf("Service '%s' deregistered from Nacos (%s:%d)", serviceName, ip, port)
	return nil
}

// DiscoverServiceInstance 从 Nacos 发现一个健康的服务实例
// 使用 Nacos 内置的负载均衡算法
func (c *Client) DiscoverServiceInstance(serviceName string) (string, int, error) {
	instance, err := c.namingClient.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: serviceName,
		GroupName:   c.groupName,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to discover healthy instance for service '%s': %w", serviceName, err)
	}
	if instance == nil {
		return "", 0, fmt.Errorf("no healthy instance available for service '%s'", serviceName)
	}
	return instance.Ip, int(instance.Port), nil
}

// ResolveBaseURL 实现 httpclient.Resolver，返回 http://ip:port
func (c *Client) ResolveBaseURL(serviceName string) (string, error) {
	ip, port, err := c.DiscoverServiceInstance(serviceName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", ip, port), nil
}

// GetConfig 从配置中心读取一份配置
func (c *Client) GetConfig(dataID string) (string, error) {
	content, err := c.configClient.GetConfig(vo.ConfigParam{DataId: dataID, Group: c.groupName})
	if err != nil {
		return "", fmt.Errorf("failed to get nacos config %s: %w", dataID, err)
	}
	return content, nil
}

// ListenConfig 监听配置变更，onChange 在 SDK 的回调 goroutine 中执行
func (c *Client) ListenConfig(dataID string, onChange func(content string)) error {
	return c.configClient.ListenConfig(vo.ConfigParam{
		DataId: dataID,
		Group:  c.groupName,
		OnChange: func(namespace, group, dataId, data string) {
			log.Info().Str("dataId", dataId).Msg("nacos config changed")
			onChange(data)
		},
	})
}

// Close 关闭 Nacos 客户端连接
func (c *Client) Close() {
	if c.configClient != nil {
		c.configClient.CloseClient()
	}
	if c.namingClient != nil {
		c.namingClient.CloseClient()
	}
}
