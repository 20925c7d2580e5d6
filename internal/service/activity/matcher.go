package activity

import (
	"time"

	"karrot_server/pkg/constants"
)

// Pair 匹配结果
//   - Instance 与 Date 都存在：已有活动对应目标时间，保持不变
//   - 只有 Instance：活动不再对应任何目标时间，待删除或脱离
//   - 只有 Date：目标时间没有对应活动，待创建
type Pair[T any] struct {
	Instance    T
	HasInstance bool
	Date        time.Time
	HasDate     bool
}

// Matcher 在两个按时间升序排列的序列上做单次前向匹配
// 只能消费一次，结果数量不超过两个序列长度之和
type Matcher[T any] struct {
	instances []T
	startOf   func(T) time.Time
	dates     []time.Time
	i, j      int
}

// NewMatcher 创建匹配器，instances 与 dates 都必须已按时间升序排序
func NewMatcher[T any](instances []T, startOf func(T) time.Time, dates []time.Time) *Matcher[T] {
	return &Matcher[T]{instances: instances, startOf: startOf, dates: dates}
}

// Next 返回下一组匹配，序列耗尽时 ok 为 false
func (m *Matcher[T]) Next() (p Pair[T], ok bool) {
	hasInst := m.i < len(m.instances)
	hasDate := m.j < len(m.dates)

	switch {
	case hasInst && hasDate:
		inst := m.instances[m.i]
		start := m.startOf(inst)
		date := m.dates[m.j]

		if absDuration(start.Sub(date)) < constants.ACTIVITY_MATCH_TOLERANCE &&
			!m.nextInstanceCloser(start, date) && !m.nextDateCloser(start, date) {
			m.i++
			m.j++
			return Pair[T]{Instance: inst, HasInstance: true, Date: date, HasDate: true}, true
		}
		if start.Before(date) || m.nextInstanceCloser(start, date) {
			m.i++
			return Pair[T]{Instance: inst, HasInstance: true}, true
		}
		m.j++
		return Pair[T]{Date: date, HasDate: true}, true
	case hasInst:
		inst := m.instances[m.i]
		m.i++
		return Pair[T]{Instance: inst, HasInstance: true}, true
	case hasDate:
		date := m.dates[m.j]
		m.j++
		return Pair[T]{Date: date, HasDate: true}, true
	}
	return p, false
}

// nextInstanceCloser 下一个活动是否严格更接近当前目标时间
func (m *Matcher[T]) nextInstanceCloser(start, date time.Time) bool {
	if m.i+1 >= len(m.instances) {
		return false
	}
	next := m.startOf(m.instances[m.i+1])
	return absDuration(next.Sub(date)) < absDuration(start.Sub(date))
}

// nextDateCloser 下一个目标时间是否严格更接近当前活动
func (m *Matcher[T]) nextDateCloser(start, date time.Time) bool {
	if m.j+1 >= len(m.dates) {
		return false
	}
	next := m.dates[m.j+1]
	return absDuration(next.Sub(start)) < absDuration(date.Sub(start))
}

// Match 消费整个匹配器并返回全部结果
func Match[T any](instances []T, startOf func(T) time.Time, dates []time.Time) []Pair[T] {
	m := NewMatcher(instances, startOf, dates)
	pairs := make([]Pair[T], 0, len(instances)+len(dates))
	for {
		p, ok := m.Next()
		if !ok {
			return pairs
		}
		pairs = append(pairs, p)
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
