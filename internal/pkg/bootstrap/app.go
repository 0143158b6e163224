// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/pkg/nacos"
	"flashpromo/internal/pkg/tracing"
)

type AppCtx struct {
	Router *mux.Router
	Nacos  *nacos.Client // Nacos 未启用时为 nil
	Config *Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由
	RegisterHandlers func(appCtx AppCtx)
	// Workers 是与 HTTP 服务同生命周期的后台任务，ctx 取消时应返回
	Workers []func(ctx context.Context) error
	// OnShutdown 在 HTTP 服务关闭后按注册的逆序执行
	OnShutdown []func(ctx context.Context) error
}

var nacosClient *nacos.Client

// Init 加载配置并初始化日志，必须在 StartService 之前调用。
func Init(serviceName string) *Config {
	path := getEnv("CONFIG_FILE", "configs/config.yaml")
	cfg, err := LoadConfigFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Infra.Nacos.Enabled {
		client, err := nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		nacosClient = client
		if cfg.Infra.Nacos.DataID != "" {
			cfg = mergeRemoteConfig(client, cfg)
		}
	}

	setCurrentConfig(cfg)
	logger.Init(serviceName, cfg.App.LogLevel)
	return cfg
}

// mergeRemoteConfig 用配置中心的内容覆盖本地配置，并监听后续变更。
func mergeRemoteConfig(client *nacos.Client, local *Config) *Config {
	dataID := local.Infra.Nacos.DataID
	content, err := client.GetConfig(dataID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch remote config, keeping local config")
		return local
	}
	remote, err := LoadConfig([]byte(content))
	if err != nil {
		log.Warn().Err(err).Msg("remote config is invalid, keeping local config")
		return local
	}
	remote.Infra.Nacos = local.Infra.Nacos

	err = client.ListenConfig(dataID, func(data string) {
		updated, err := LoadConfig([]byte(data))
		if err != nil {
			log.Error().Err(err).Msg("ignoring invalid config update")
			return
		}
		updated.Infra.Nacos = local.Infra.Nacos
		setCurrentConfig(updated)
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to listen for config changes")
	}
	return remote
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 服务注册
	var ip string
	if nacosClient != nil {
		ip, err = getOutboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := nacosClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. 创建 HTTP Server
	router := mux.NewRouter()
	router.Use(tracing.Middleware, logger.Middleware)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Router: router, Nacos: nacosClient, Config: cfg})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 4. 运行 HTTP 服务和后台任务，任一失败或收到信号都会触发关停
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, worker := range info.Workers {
		worker := worker
		g.Go(func() error { return worker(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("Shutting down service %s...", info.ServiceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 按顺序执行清理操作 (后进先出)
		if nacosClient != nil {
			if err := nacosClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				log.Error().Err(err).Msg("Error deregistering from Nacos")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down http server")
		}
		for i := len(info.OnShutdown) - 1; i >= 0; i-- {
			if err := info.OnShutdown[i](shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error running shutdown hook")
			}
		}
		if nacosClient != nil {
			nacosClient.Close()
		}
		// 确保所有缓冲的 trace 都被发送出去
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down tracer provider")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msgf("Service %s stopped with error", info.ServiceName)
		return
	}
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getOutboundIP 通过一次 UDP "连接" 取得本机对外的 IP，不会真正发包。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
