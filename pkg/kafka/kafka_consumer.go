package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerService 定义了消费 Kafka 消息的通用接口
type ConsumerService interface {
	// Consume 阻塞消费指定主题，对每条消息调用handler，handler返回后提交offset。
	// 先处理后提交，即at-least-once语义；提交与否不看处理结果。
	Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, value []byte)) error
	Close()
}

type kafkaConsumer struct {
	brokerURL string
	reader    *kafka.Reader
}

func NewKafkaConsumer(brokerURL string) ConsumerService {
	return &kafkaConsumer{
		brokerURL: brokerURL,
	}
}

func (c *kafkaConsumer) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, value []byte)) error {
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{c.brokerURL},
		Topic:    topic,
		GroupID:  groupID, // 多个worker进程用同一个GroupID形成竞争消费
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		// 从最新的 offset 开始消费
		StartOffset: kafka.LastOffset,
		MaxAttempts: 3,
	})
	defer c.reader.Close()

	for {
		// 阻塞读取消息
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			// 如果是 Context 被取消（服务关闭），正常退出
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("ERROR: Kafka read error on topic %s: %v", topic, err)
			time.Sleep(time.Second) // 短暂等待后重试
			continue
		}

		handler(ctx, m.Value)

		// 处理完成后手动提交，处理失败也提交，失败恢复交给上层的退避重排
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("ERROR: Failed to commit offset: %v", err)
		}
	}
}

func (c *kafkaConsumer) Close() {
	if c.reader != nil {
		_ = c.reader.Close()
	}
}
