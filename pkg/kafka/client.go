// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chat-dumper-go/internal/config"
	"chat-dumper-go/pkg/log"
	"chat-dumper-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor 是消费拦截任务的处理方，解耦 Kafka 消费者与具体业务实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.InterceptTask) error
}

// Producer 负责投递拦截任务与导出事件。
type Producer struct {
	intercepts *kafka.Writer
	exports    *kafka.Writer
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		// 同一会话的任务使用相同 key，落在同一分区，保证处理顺序。
		intercepts: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		},
		exports: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.ExportTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// ProduceInterceptTask 发送一个拦截任务到 Kafka。
func (p *Producer) ProduceInterceptTask(ctx context.Context, task tasks.InterceptTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.intercepts.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.SessionID),
		Value: taskBytes,
	})
}

// PublishExportEvent 发送一条导出完成事件。
func (p *Producer) PublishExportEvent(ctx context.Context, event tasks.ExportEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.exports.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: eventBytes,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return errors.Join(p.intercepts.Close(), p.exports.Close())
}

// StartConsumer 启动一个 Kafka 消费者，按顺序处理拦截任务，直到 ctx 被取消。
// 拦截任务不重试：无论处理成功与否都提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者收到停止信号")
			} else {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		log.Debugf("收到 Kafka 消息: partition %d offset %d", m.Partition, m.Offset)

		if err := handleMessage(ctx, processor, m.Value); err != nil {
			log.Errorf("拦截任务处理失败，已丢弃: offset %d, err: %v", m.Offset, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

func handleMessage(ctx context.Context, processor TaskProcessor, value []byte) error {
	var task tasks.InterceptTask
	if err := json.Unmarshal(value, &task); err != nil {
		return fmt.Errorf("无法解析 Kafka 消息: %w", err)
	}
	return processor.Process(ctx, task)
}
