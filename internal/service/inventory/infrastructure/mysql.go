// internal/service/inventory/infrastructure/mysql.go
package infrastructure

import (
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"nexus-inventory/internal/pkg/bootstrap"
	"nexus-inventory/internal/service/inventory/domain"
)

// MySQL 错误码：死锁和锁等待超时都按乐观锁冲突处理，交给上层的重试逻辑
const (
	mysqlErrLockDeadlock = 1213
	mysqlErrLockWaitTime = 1205
)

// OpenMySQL 按配置打开 MySQL 连接池。
// DSN 会被强制设置 parseTime=true 和 loc=UTC，保证 expires_at 的比较语义一致。
func OpenMySQL(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	dsnCfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{DSNConfig: dsnCfg}), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate 创建或更新 products 和 stock_reservations 表结构。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ProductModel{}, &StockReservationModel{}); err != nil {
		return errors.Wrap(err, "auto migrate inventory schema")
	}
	return nil
}

// classify 把驱动层错误翻译为领域错误。
func classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockDeadlock, mysqlErrLockWaitTime:
			return errors.Wrap(domain.ErrWriteConflict, myErr.Message)
		}
	}
	return err
}
