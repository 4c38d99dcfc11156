// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/nacos"
	"nexus-inventory/internal/pkg/utils"
	"nexus-inventory/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// AppCtx 是注册阶段可以使用的公共组件。
type AppCtx struct {
	Ctx    context.Context // 收到退出信号后被取消
	Mux    *http.ServeMux
	Config *Config
	// Go 在服务的 errgroup 中启动一个长期运行的任务，任务返回错误会触发整个进程退出
	Go func(task func(ctx context.Context) error)
	// OnShutdown 注册关停时的清理函数，按注册顺序的逆序执行
	OnShutdown func(fn func(ctx context.Context) error)
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) error
}

// StartService 封装了通用的启动和优雅关停逻辑:
// tracer、HTTP server、可选的 Nacos 注册，以及业务注册的后台任务。
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var cleanups []func(ctx context.Context) error
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		err := info.RegisterHandlers(AppCtx{
			Ctx:        gctx,
			Mux:        mux,
			Config:     cfg,
			Go:         func(task func(ctx context.Context) error) { g.Go(func() error { return task(gctx) }) },
			OnShutdown: func(fn func(ctx context.Context) error) { cleanups = append(cleanups, fn) },
		})
		if err != nil {
			stop()
			_ = g.Wait()
			runCleanups(cleanups)
			return errors.Wrapf(err, "register %s", info.ServiceName)
		}
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	g.Go(func() error {
		logger.L().Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", server.Addr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	deregister := registerNacos(cfg, info)

	runErr := g.Wait()
	logger.L().Info().Str("service", info.ServiceName).Msg("shutting down")

	deregister()
	runCleanups(cleanups)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// 确保所有缓冲的 span 都被发送出去
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.L().Error().Err(err).Msg("error shutting down tracer provider")
	}
	logger.L().Info().Str("service", info.ServiceName).Msg("gracefully shut down")
	return runErr
}

// runCleanups 按注册顺序的逆序执行清理函数，单个失败只记录日志。
func runCleanups(cleanups []func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil {
			logger.L().Error().Err(err).Msg("cleanup failed")
		}
	}
}

// registerNacos 在配置了 Nacos 地址时注册实例，返回注销函数。注册失败不影响服务启动。
func registerNacos(cfg *Config, info AppInfo) func() {
	noop := func() {}
	if cfg.Infra.Nacos.ServerAddrs == "" {
		return noop
	}
	client, err := nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		logger.L().Warn().Err(err).Msg("nacos unavailable, skip registration")
		return noop
	}
	ip, err := utils.GetOutboundIP()
	if err != nil {
		logger.L().Warn().Err(err).Msg("could not resolve outbound ip, skip registration")
		client.Close()
		return noop
	}
	if err := client.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.L().Warn().Err(err).Msg("nacos registration failed")
		client.Close()
		return noop
	}
	return func() {
		if err := client.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.L().Error().Err(err).Msg("error deregistering from nacos")
		}
		client.Close()
	}
}
