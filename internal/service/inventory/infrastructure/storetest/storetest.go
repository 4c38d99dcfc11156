// Package storetest 为仓储和应用层测试提供内存 SQLite 数据库。
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"nexus-inventory/internal/service/inventory/infrastructure"
)

// Open 为每个测试创建一个独立的内存数据库并完成建表。
// SQLite 只允许一个写事务，连接池限制为 1，测试代码不能在事务内部再使用根连接。
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infrastructure.Migrate(db))
	return db
}

// SeedProduct 写入一个指定库存的商品。
func SeedProduct(t testing.TB, db *gorm.DB, id string, stock int64) {
	t.Helper()
	require.NoError(t, db.WithContext(context.Background()).Create(&infrastructure.ProductModel{
		ID:    id,
		Name:  "product " + id,
		Stock: stock,
	}).Error)
}

// Stock 读取商品当前库存。
func Stock(t testing.TB, db *gorm.DB, id string) int64 {
	t.Helper()
	var m infrastructure.ProductModel
	require.NoError(t, db.Where("id = ?", id).First(&m).Error)
	return m.Stock
}
