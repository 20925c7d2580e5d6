// Package repository 提供数据访问层的具体实现
package repository

import (
	"errors"
	"strings"

	"karrot_server/pkg/errorx"

	"gorm.io/gorm"
)

// ==================== 错误包装辅助函数 ====================

// wrapDBError 包装数据库错误
// 根据错误类型返回不同的错误码：
//   - ErrRecordNotFound -> CodeNotFound
//   - 唯一键冲突 -> CodeValidation
//   - 锁等待 / 死锁 -> CodeTransientStore
//   - 其他错误 -> CodeDBError
func wrapDBError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errorx.Wrap(err, classify(err), msg)
}

// wrapDBErrorf 包装数据库错误（支持格式化消息）
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errorx.Wrapf(err, classify(err), format, args...)
}

// classify 把驱动错误映射到业务错误码
// MySQL 与 SQLite 的错误文本不同，这里按关键字匹配
func classify(err error) int {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.CodeNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errorx.CodeValidation
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate entry"), strings.Contains(msg, "unique constraint failed"):
		return errorx.CodeValidation
	case strings.Contains(msg, "deadlock"), strings.Contains(msg, "lock wait timeout"), strings.Contains(msg, "database is locked"):
		return errorx.CodeTransientStore
	}
	return errorx.CodeDBError
}
