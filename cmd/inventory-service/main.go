// cmd/inventory-service/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"nexus-inventory/internal/pkg/bootstrap"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/pkg/mq"
	"nexus-inventory/internal/pkg/redis"
	"nexus-inventory/internal/service/inventory"
	"nexus-inventory/internal/service/inventory/domain/port"
	"nexus-inventory/internal/service/inventory/infrastructure"
	"nexus-inventory/internal/service/inventory/infrastructure/adapter"
	"nexus-inventory/internal/service/inventory/interfaces"
	"nexus-inventory/internal/zookeeper"
)

const (
	serviceName     = "inventory-service"
	dedupeKeyPrefix = "inventory:payment-event"
	sweepLockID     = "inventory-expiry-sweep"
)

// main 是服务的组装根：创建并组装所有依赖项，然后交给 bootstrap 启动。
func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(serviceName, cfg.App.LogLevel)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             cfg.App.Port,
		RegisterHandlers: register,
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("inventory service exited")
	}
}

func register(app bootstrap.AppCtx) error {
	cfg := app.Config
	tracer := otel.Tracer(serviceName)
	m := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)

	db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
	if err != nil {
		return err
	}
	app.OnShutdown(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	mod, err := inventory.NewModule(cfg, db, tracer, m)
	if err != nil {
		return err
	}
	interfaces.NewInventoryHandler(mod.Reservations, mod.Fulfillment, mod.Availability, mod.Sweeper, tracer).
		RegisterRoutes(app.Mux)

	// 支付结果消费者
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		return err
	}
	app.OnShutdown(func(context.Context) error { return redisClient.Close() })
	dedupe := adapter.NewRedisIdempotencyAdapter(redisClient, dedupeKeyPrefix, cfg.Reservation.DedupeTTL)

	kafkaCfg := cfg.Infra.Kafka
	alertWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.AlertTopic)
	dltWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, mq.DLTTopic(kafkaCfg.PaymentTopic))
	app.OnShutdown(func(context.Context) error { return alertWriter.Close() })
	app.OnShutdown(func(context.Context) error { return dltWriter.Close() })

	consumer := interfaces.NewPaymentEventHandler(
		mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.PaymentTopic, kafkaCfg.GroupID),
		mod.Reservations,
		mod.Fulfillment,
		dedupe,
		adapter.NewAlertKafkaAdapter(alertWriter),
		mq.NewFailureHandler(dltWriter),
		tracer,
	)
	app.Go(consumer.Run)
	app.OnShutdown(func(context.Context) error { return consumer.Stop() })

	if cfg.App.EmbeddedSweeper {
		locker, err := sweepLocker(cfg, app)
		if err != nil {
			return err
		}
		app.Go(interfaces.NewSweeperRunner(mod.Sweeper, locker, cfg.Reservation.SweepInterval).Run)
	}
	return nil
}

// sweepLocker 配置了 ZooKeeper 时返回分布式锁，否则退化为单实例模式。
func sweepLocker(cfg *bootstrap.Config, app bootstrap.AppCtx) (port.Locker, error) {
	zkCfg := cfg.Infra.Zookeeper
	if len(zkCfg.Servers) == 0 {
		return port.NoopLocker{}, nil
	}
	conn, err := zookeeper.Connect(zkCfg.Servers, zkCfg.SessionTimeout)
	if err != nil {
		return nil, err
	}
	app.OnShutdown(func(context.Context) error {
		conn.Close()
		return nil
	})
	return zookeeper.NewDistributedLock(conn, sweepLockID, cfg.Reservation.SweepInterval/2)
}
