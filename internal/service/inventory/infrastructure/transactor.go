// internal/service/inventory/infrastructure/transactor.go
package infrastructure

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type txKey struct{}

// GormTransactor 实现 domain.Transactor。
// 事务对象通过 context 传给仓储，仓储用 conn(ctx) 取出当前事务。
type GormTransactor struct {
	db        *gorm.DB
	isolation sql.IsolationLevel
}

// NewGormTransactor 创建事务管理器，isolation 为 sql.LevelDefault 时使用数据库默认隔离级别。
func NewGormTransactor(db *gorm.DB, isolation sql.IsolationLevel) *GormTransactor {
	return &GormTransactor{db: db, isolation: isolation}
}

// InNewTx 始终基于根连接开启新事务，即使 ctx 中已经有调用方的事务，
// 这里的提交或回滚也不会影响调用方。
func (t *GormTransactor) InNewTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var opts []*sql.TxOptions
	if t.isolation != sql.LevelDefault {
		opts = append(opts, &sql.TxOptions{Isolation: t.isolation})
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

// conn 返回 ctx 中的事务；没有事务时退化为根连接。
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// ParseIsolation 把配置中的隔离级别名称转换为 sql.IsolationLevel。
func ParseIsolation(name string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return sql.LevelDefault, nil
	case "read_committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, errors.Errorf("unsupported isolation level %q", name)
	}
}
