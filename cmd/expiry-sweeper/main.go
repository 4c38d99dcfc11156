// cmd/expiry-sweeper/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"nexus-inventory/internal/pkg/bootstrap"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/service/inventory"
	"nexus-inventory/internal/service/inventory/domain/port"
	"nexus-inventory/internal/service/inventory/infrastructure"
	"nexus-inventory/internal/service/inventory/interfaces"
	"nexus-inventory/internal/zookeeper"
)

const (
	serviceName = "expiry-sweeper"
	sweepLockID = "inventory-expiry-sweep"
)

// 独立部署的过期清理进程。多副本部署时依靠 ZooKeeper 锁保证同一时刻只有一个副本在清理。
func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(serviceName, cfg.App.LogLevel)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(app bootstrap.AppCtx) error {
			m := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
			db, err := infrastructure.OpenMySQL(app.Config.Infra.MySQL)
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
			mod, err := inventory.NewModule(app.Config, db, otel.Tracer(serviceName), m)
			if err != nil {
				return err
			}

			var locker port.Locker = port.NoopLocker{}
			if zkCfg := app.Config.Infra.Zookeeper; len(zkCfg.Servers) > 0 {
				conn, err := zookeeper.Connect(zkCfg.Servers, zkCfg.SessionTimeout)
				if err != nil {
					return err
				}
				app.OnShutdown(func(context.Context) error {
					conn.Close()
					return nil
				})
				lock, err := zookeeper.NewDistributedLock(conn, sweepLockID, app.Config.Reservation.SweepInterval/2)
				if err != nil {
					return err
				}
				locker = lock
			}

			app.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			app.Mux.Handle("/metrics", metrics.Handler())
			app.Go(interfaces.NewSweeperRunner(mod.Sweeper, locker, app.Config.Reservation.SweepInterval).Run)
			return nil
		},
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("expiry sweeper exited")
	}
}
