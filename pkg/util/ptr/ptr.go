// Package ptr 提供可空字段的指针辅助函数
package ptr

// Of 返回 v 的指针
func Of[T any](v T) *T {
	return &v
}

// Clone 复制指针指向的值，nil 原样返回
func Clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Equal 比较两个可空值，都为 nil 视为相等
func Equal[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
