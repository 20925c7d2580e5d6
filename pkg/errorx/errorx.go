package errorx

import (
	"errors"
	"fmt"
)

// CodeError 带业务错误码的自定义错误
// 实现了 error 接口，支持包装底层错误，且能被 errors.Is/errors.As 识别
type CodeError struct {
	Code  int    // 业务错误码
	Msg   string // 错误消息
	cause error  // 被包装的底层错误
}

// Error 返回 "消息: 底层错误"，无底层错误时仅返回消息
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 按错误码比较，使 errors.Is(err, ErrValidation) 对所有校验错误成立
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.cause == nil && t.Msg == "" && t.Code == e.Code
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

// Newf 创建一个带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeNotFound, "活动不存在")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   msg,
		cause: err,
	}
}

// Wrapf 包装底层错误，支持格式化消息
// 用法: errorx.Wrapf(err, CodeNotFound, "投票 %d 不存在", votingId)
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
}

// GetCode 从错误中提取业务错误码，如果不是 CodeError 则返回默认码
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// 业务状态码常量定义
const (
	CodeSuccess        = 1000 // 成功
	CodeInvalidParam   = 1001 // 请求参数错误
	CodeServerBusy     = 1005 // 服务繁忙
	CodeUnauthorized   = 1006 // 无权限
	CodeNotFound       = 1008 // 资源不存在
	CodeDBError        = 1010 // 数据库错误
	CodeCacheError     = 1011 // 缓存错误
	CodeMQError        = 1012 // 消息队列错误
	CodeValidation     = 1020 // 业务校验失败（规则非法、评分越界、重复信任、重复议题）
	CodeInvariant      = 1021 // 程序不变量被破坏，不面向用户
	CodeTransientStore = 1022 // 存储暂时不可用，下一轮清扫重试
)

// 预定义常用错误实例
// 这些实例既可直接返回，也可用于 errors.Is 比较
var (
	ErrInvalidParam = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy   = New(CodeServerBusy, "服务繁忙")

	// 以下哨兵只带错误码，用于 errors.Is 按类别判断
	ErrValidation     = &CodeError{Code: CodeValidation}
	ErrInvariant      = &CodeError{Code: CodeInvariant}
	ErrTransientStore = &CodeError{Code: CodeTransientStore}
)

// Validation 创建 ValidationError
func Validation(format string, args ...any) *CodeError {
	return Newf(CodeValidation, format, args...)
}

// Invariant 创建 InvariantViolation
func Invariant(format string, args ...any) *CodeError {
	return Newf(CodeInvariant, format, args...)
}

// IsValidation 判断是否为业务校验错误
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvariant 判断是否为不变量错误
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}

// IsNotFound 检查错误是否为"未找到"类型（包括 gorm.ErrRecordNotFound）
func IsNotFound(err error) bool {
	var codeErr *CodeError
	if errors.As(err, &codeErr) && codeErr.Code == CodeNotFound {
		return true
	}
	return err != nil && err.Error() == "record not found"
}
