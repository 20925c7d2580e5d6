package redis

import "strconv"

const keyPrefix = "karrot:"

// ThresholdKey 小组编辑晋升阈值缓存键
func ThresholdKey(groupId uint) string {
	return keyPrefix + "trust_threshold:" + strconv.FormatUint(uint64(groupId), 10)
}

// SweepLockKey 定时清扫的租约锁键
func SweepLockKey(name string) string {
	return keyPrefix + "sweep_lock:" + name
}
