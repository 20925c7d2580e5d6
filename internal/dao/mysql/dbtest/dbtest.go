// Package dbtest 为测试提供基于内存 SQLite 的 Repository 实例
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"karrot_server/internal/dao/mysql"
	"karrot_server/internal/dao/mysql/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq int64

// Open 打开一个独立的内存数据库并完成迁移
// 单连接保证事务内外看到同一份数据；事务中只能使用 txRepos
func Open(t testing.TB) (*repository.Repositories, *gorm.DB) {
	t.Helper()
	name := fmt.Sprintf("file:karrot_%d?mode=memory&cache=shared", atomic.AddInt64(&seq, 1))
	db, err := mysql.Open(sqlite.Open(name))
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := mysql.Migrate(db); err != nil {
		t.Fatal(err)
	}
	return repository.NewRepositories(db), db
}

// MustCreate 写入测试数据，失败时终止测试
func MustCreate(t testing.TB, db *gorm.DB, values ...any) {
	t.Helper()
	for _, v := range values {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create %T: %v", v, err)
		}
	}
}
