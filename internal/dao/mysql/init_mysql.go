// Package mysql 负责建立 MySQL 连接、自动迁移表结构、初始化 Repository 层
package mysql

import (
	"fmt"
	"time"

	"karrot_server/internal/config"
	"karrot_server/internal/dao/mysql/repository"
	"karrot_server/internal/model"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Init 初始化数据库连接并返回 Repository 层实例
// 执行步骤：
//  1. 根据配置构建 DSN 连接字符串
//  2. 使用 GORM 建立数据库连接
//  3. 执行 AutoMigrate 自动迁移表结构
//  4. 创建并返回 Repository 实例
func Init(cfg *config.MysqlConfig) (*repository.Repositories, error) {
	// 格式：user:password@tcp(host:port)/database?params
	// loc=UTC 保证时间字段按 UTC 读写，时区换算只在业务层进行
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DatabaseName,
	)

	db, err := Open(mysqldriver.Open(dsn))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	zap.L().Info("MySQL 初始化完成", zap.String("database", cfg.DatabaseName))
	return repository.NewRepositories(db), nil
}

// Open 使用给定方言打开 GORM 连接
// TranslateError 打开后唯一索引冲突统一翻译为 gorm.ErrDuplicatedKey
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return db, nil
}

// Migrate 自动迁移全部表结构
// 如果表不存在则创建，如果字段变更则更新结构，不会删除已有字段或数据
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("迁移表结构失败: %w", err)
	}
	return nil
}
