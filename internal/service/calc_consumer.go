package service

import (
	"context"
	"iotflow/conf"
	"iotflow/pkg/kafka"
	"iotflow/pkg/logger"
	"strconv"
	"strings"
)

// 触发消息消费入口。消息体是规则id的十进制字符串，
// 处理完成后提交offset（at-least-once），处理失败不触发broker重投，
// 重试由执行引擎的退避重排完成。

type CalcConsumer struct {
	consumer kafka.ConsumerService
	runner   *CalcRunner
	cfg      conf.CalcConfig
}

func NewCalcConsumer(consumer kafka.ConsumerService, runner *CalcRunner, cfg conf.CalcConfig) *CalcConsumer {
	return &CalcConsumer{
		consumer: consumer,
		runner:   runner,
		cfg:      cfg,
	}
}

// Run 阻塞消费触发主题直到ctx取消
func (c *CalcConsumer) Run(ctx context.Context) {
	logger.Infof("calc consumer started, topic %s group %s", c.cfg.Topic, c.cfg.Group)
	err := c.consumer.Consume(ctx, c.cfg.Topic, c.cfg.Group, func(ctx context.Context, value []byte) {
		ruleId, parseErr := strconv.ParseInt(strings.TrimSpace(string(value)), 10, 64)
		if parseErr != nil {
			logger.Errorf("invalid trigger message %q: %v", value, parseErr)
			return
		}
		c.runner.Handle(ctx, ruleId)
	})
	if err != nil {
		logger.Errorf("calc consumer exited: %v", err)
	}
}
