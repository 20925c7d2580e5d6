package activity

import (
	"strings"
	"time"

	"karrot_server/pkg/errorx"

	"github.com/teambition/rrule-go"
)

// compoundMarkers 出现即视为复合规则
var compoundMarkers = []string{"RDATE", "EXDATE", "EXRULE"}

// ParseRule 解析单条 RFC 5545 重复规则
// 多行、多个 FREQ 或带 RDATE/EXDATE/EXRULE 的复合规则返回 CodeValidation
func ParseRule(rule string) (*rrule.ROption, error) {
	text := strings.TrimSpace(rule)
	if text == "" {
		return nil, errorx.Validation("重复规则不能为空")
	}
	if strings.ContainsAny(text, "\r\n") {
		return nil, errorx.Validation("只支持单条重复规则: %q", rule)
	}
	upper := strings.ToUpper(text)
	if strings.Count(upper, "FREQ=") != 1 {
		return nil, errorx.Validation("只支持单条重复规则: %q", rule)
	}
	for _, marker := range compoundMarkers {
		if strings.Contains(upper, marker) {
			return nil, errorx.Validation("不支持复合重复规则: %q", rule)
		}
	}
	// 属性名和取值不区分大小写，统一转成大写再解析
	opt, err := rrule.StrToROption(strings.TrimPrefix(upper, "RRULE:"))
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeValidation, "无法解析重复规则: %q", rule)
	}
	return opt, nil
}

// ValidateRule 校验重复规则可以解析且能生成 RRule
func ValidateRule(rule string) error {
	opt, err := ParseRule(rule)
	if err != nil {
		return err
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return errorx.Wrapf(err, errorx.CodeValidation, "无效的重复规则: %q", rule)
	}
	return nil
}

// RuleWithUntil 把规则的 UNTIL 改写为 until，用于冻结系列的后续展开
// COUNT 与 UNTIL 互斥，改写后去掉 COUNT
func RuleWithUntil(rule string, until time.Time) (string, error) {
	opt, err := ParseRule(rule)
	if err != nil {
		return "", err
	}
	opt.Count = 0
	opt.Until = until.UTC().Truncate(time.Second)
	opt.Dtstart = time.Time{}
	return opt.RRuleString(), nil
}

// ComputeTargetDates 计算窗口 [windowStart, windowStart+window) 内的目标开始时间
// 展开在取货点时区的本地墙上时间中进行，结果再转换回带时区的时刻，
// 保证夏令时切换前后本地钟点不变
func ComputeTargetDates(rule string, start time.Time, tz *time.Location, windowStart time.Time, window time.Duration) ([]time.Time, error) {
	if tz == nil {
		tz = time.UTC
	}
	opt, err := ParseRule(rule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = toNaive(start, tz)
	if !opt.Until.IsZero() {
		opt.Until = toNaive(opt.Until, tz)
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeValidation, "无效的重复规则: %q", rule)
	}

	after := toNaive(windowStart, tz)
	before := toNaive(windowStart.Add(window), tz)
	naive := r.Between(after, before, false)

	dates := make([]time.Time, 0, len(naive))
	for _, n := range naive {
		dates = append(dates, fromNaive(n, tz))
	}
	return dates, nil
}

// toNaive 取 t 在 tz 中的墙上时间，以 UTC 表示
func toNaive(t time.Time, tz *time.Location) time.Time {
	l := t.In(tz)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// fromNaive 把墙上时间还原为 tz 中的时刻
func fromNaive(n time.Time, tz *time.Location) time.Time {
	return time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), n.Second(), n.Nanosecond(), tz)
}
