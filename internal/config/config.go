// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml" // TOML 配置文件解析库
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName string `toml:"appName"` // 应用名称，用于日志标识等
	Host    string `toml:"host"`    // 运维接口监听地址，如 "0.0.0.0"
	Port    int    `toml:"port"`    // 运维接口监听端口，如 8000
	Mode    string `toml:"mode"`    // 运行模式：dev 或 release
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`         // MySQL 服务器地址
	Port         int    `toml:"port"`         // MySQL 端口，默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码
	DatabaseName string `toml:"databaseName"` // 数据库名称
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `toml:"host"`     // Redis 服务器地址
	Port     int    `toml:"port"`     // Redis 端口，默认 6379
	Password string `toml:"password"` // Redis 密码，无密码留空
	Db       int    `toml:"db"`       // Redis 数据库编号，默认 0
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// KafkaConfig Kafka 事件队列配置
type KafkaConfig struct {
	MessageMode string        `toml:"messageMode"` // 事件模式："channel"（仅记日志）或 "kafka"
	HostPort    string        `toml:"hostPort"`    // Kafka 服务器地址，如 "localhost:9092"
	EventTopic  string        `toml:"eventTopic"`  // 历史/通知事件主题
	Partition   int           `toml:"partition"`   // 分区数
	Timeout     time.Duration `toml:"timeout"`     // 写超时（秒）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023
}

// ActivityConfig 活动系列展开配置
type ActivityConfig struct {
	WindowDays           int `toml:"windowDays"`           // 向前展开的天数
	StartOffsetMinutes   int `toml:"startOffsetMinutes"`   // 展开窗口相对当前时间的偏移
	SweepIntervalMinutes int `toml:"sweepIntervalMinutes"` // 系列清扫间隔
}

// ConflictConfig 冲突处理（议题投票）配置
type ConflictConfig struct {
	VotingDurationHours  int `toml:"votingDurationHours"`  // 每轮投票时长
	SweepIntervalSeconds int `toml:"sweepIntervalSeconds"` // 到期清扫间隔
}

// TrustConfig 信任晋升配置
type TrustConfig struct {
	EditorMaxThreshold int `toml:"editorMaxThreshold"` // 晋升编辑所需信任数上限
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`      // 主配置
	MysqlConfig     `toml:"mysqlConfig"`     // MySQL 配置
	RedisConfig     `toml:"redisConfig"`     // Redis 配置
	LogConfig       `toml:"logConfig"`       // 日志配置
	KafkaConfig     `toml:"kafkaConfig"`     // Kafka 配置
	SnowflakeConfig `toml:"snowflakeConfig"` // 雪花算法配置
	ActivityConfig  `toml:"activityConfig"`  // 活动系列配置
	ConflictConfig  `toml:"conflictConfig"`  // 冲突处理配置
	TrustConfig     `toml:"trustConfig"`     // 信任晋升配置
}

// Window 展开窗口长度，默认六周
func (c ActivityConfig) Window() time.Duration {
	if c.WindowDays <= 0 {
		return 42 * 24 * time.Hour
	}
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// StartOffset 展开窗口起点偏移，默认 5 分钟
// 避免生成一个只剩几秒就开始的活动
func (c ActivityConfig) StartOffset() time.Duration {
	if c.StartOffsetMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.StartOffsetMinutes) * time.Minute
}

// SweepInterval 系列清扫间隔，默认 1 小时
func (c ActivityConfig) SweepInterval() time.Duration {
	if c.SweepIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// VotingDuration 每轮投票时长，默认 7 天
func (c ConflictConfig) VotingDuration() time.Duration {
	if c.VotingDurationHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.VotingDurationHours) * time.Hour
}

// SweepInterval 投票到期清扫间隔，默认 1 分钟
func (c ConflictConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// MaxThreshold 晋升阈值上限，默认 3
func (c TrustConfig) MaxThreshold() int {
	if c.EditorMaxThreshold <= 0 {
		return 3
	}
	return c.EditorMaxThreshold
}

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	paths := []string{
		"configs/config_local.toml",       // 本地开发配置（优先）
		"configs/config.toml",             // 默认配置
		"../../configs/config_local.toml", // 从子目录运行时的路径
		"../../configs/config.toml",       // 从子目录运行时的路径
	}

	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			return nil
		}
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// Decode 从 TOML 文本解析配置，供测试和嵌入式部署使用
func Decode(data string) (*Config, error) {
	conf := new(Config)
	if _, err := toml.Decode(data, conf); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return conf, nil
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig() // 忽略加载错误，使用默认值
	}
	return config
}
