// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// Producer 将摄取任务写入 Kafka，实现 tasks.Dispatcher。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("[Kafka] 生产者初始化成功")
	return &Producer{writer: w}
}

// Dispatch 以文档 ID 为 key 投递，同一文档的任务落在同一分区。
func (p *Producer) Dispatch(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprint(task.DocumentID)),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 从 Kafka 消费摄取任务。
type Consumer struct {
	cfg         config.KafkaConfig
	rdb         *redis.Client
	maxAttempts int64
}

// NewConsumer 创建消费者，失败次数记录在 Redis 中。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, maxAttempts int) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{cfg: cfg, rdb: rdb, maxAttempts: int64(maxAttempts)}
}

func attemptsKey(documentID uint) string {
	return fmt.Sprintf("kafka:attempts:%d", documentID)
}

// Run 阻塞消费直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context, processor tasks.Processor) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(c.cfg.Brokers, ","),
		Topic:    c.cfg.Topic,
		GroupID:  c.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", c.cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			c.commit(ctx, r, m)
			continue
		}

		c.handle(ctx, processor, task)
		c.commit(ctx, r, m)
	}
}

// handle 在失败时按 Redis 中的计数重试，达到上限后放弃。
func (c *Consumer) handle(ctx context.Context, processor tasks.Processor, task tasks.IngestTask) {
	key := attemptsKey(task.DocumentID)
	for {
		err := processor.Process(ctx, task)
		if err == nil {
			_ = c.rdb.Del(ctx, key).Err()
			return
		}
		log.Errorf("[Kafka] 处理摄取任务失败: document_id=%d, error: %v", task.DocumentID, err)

		attempts, incErr := c.rdb.Incr(ctx, key).Result()
		if incErr != nil {
			log.Errorf("[Kafka] 记录失败次数出错: %v", incErr)
			return
		}
		_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
		if attempts >= c.maxAttempts {
			log.Errorf("[Kafka] 摄取任务多次失败(>=%d)，放弃重试: document_id=%d", c.maxAttempts, task.DocumentID)
			_ = c.rdb.Del(ctx, key).Err()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempts) * time.Second):
		}
	}
}

func (c *Consumer) commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] 提交消息 offset 失败: %v", err)
	}
}
