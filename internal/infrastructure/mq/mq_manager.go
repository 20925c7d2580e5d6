package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	myconfig "karrot_server/internal/config"
	"karrot_server/pkg/errorx"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewPublisher 按配置的消息模式创建发布者
// "kafka" 写入 Kafka，其他取值只记录日志
func NewPublisher(cfg myconfig.KafkaConfig) Publisher {
	if cfg.MessageMode == "kafka" {
		return NewKafkaPublisher(cfg)
	}
	return LogPublisher{}
}

// kafkaPublisher 基于 kafka-go Writer 的事件发布者
type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 初始化 Kafka 写入端
func NewKafkaPublisher(cfg myconfig.KafkaConfig) Publisher {
	timeout := cfg.Timeout * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.HostPort),
		Topic:                  cfg.EventTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}}
}

// Publish 批量写入事件，按小组分区
func (k *kafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := e.Encode()
		if err != nil {
			return errorx.Wrapf(err, errorx.CodeMQError, "序列化事件 %s", e.Type)
		}
		msgs = append(msgs, kafka.Message{Key: e.Key(), Value: value})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return errorx.Wrapf(err, errorx.CodeMQError, "写入 Kafka topic=%s", k.writer.Topic)
	}
	return nil
}

// Close 关闭写入端
func (k *kafkaPublisher) Close() error {
	if err := k.writer.Close(); err != nil {
		zap.L().Error("close kafka writer", zap.Error(err))
		return err
	}
	return nil
}

// CreateTopic 创建事件主题，已存在时 Kafka 返回错误，只记录日志
func CreateTopic(cfg myconfig.KafkaConfig) error {
	conn, err := kafka.Dial("tcp", cfg.HostPort)
	if err != nil {
		return fmt.Errorf("连接 Kafka 失败: %w", err)
	}
	defer conn.Close()

	partitions := cfg.Partition
	if partitions <= 0 {
		partitions = 1
	}
	if err := conn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.EventTopic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}); err != nil {
		zap.L().Warn("create kafka topic", zap.String("topic", cfg.EventTopic), zap.Error(err))
	}
	return nil
}

// LogPublisher channel 模式下的发布者，事件只写日志
type LogPublisher struct{}

// Publish 记录事件
func (LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		zap.L().Info("domain event",
			zap.Int64("id", e.ID),
			zap.String("type", string(e.Type)),
			zap.Uint("groupId", e.GroupId),
			zap.Uint("userId", e.UserId),
			zap.Uint("objectId", e.ObjectId),
			zap.Any("payload", e.Payload),
		)
	}
	return nil
}

// Close 无需释放资源
func (LogPublisher) Close() error { return nil }

// MemoryPublisher 把事件保存在内存中，用于测试和单进程部署的事件回放
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// Publish 追加事件
func (m *MemoryPublisher) Publish(_ context.Context, events ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events 返回已发布事件的副本
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Count 统计某类事件的数量
func (m *MemoryPublisher) Count(typ EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// Close 无需释放资源
func (m *MemoryPublisher) Close() error { return nil }
