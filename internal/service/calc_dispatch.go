package service

import (
	"context"
	"iotflow/internal/dao"
	"iotflow/pkg/kafka"
	"iotflow/pkg/logger"
	"iotflow/utils"
	"strconv"
	"time"
)

// 延迟队列分发器。redis sorted set是唯一的定时源，
// 分发器把到期的规则id发到kafka做横向扩散，多个worker进程竞争消费。

type CalcDispatcher struct {
	cacheDao dao.CalcCacheDao
	producer kafka.ProducerService
	interval time.Duration
}

func NewCalcDispatcher(cacheDao dao.CalcCacheDao, producer kafka.ProducerService, interval time.Duration) *CalcDispatcher {
	return &CalcDispatcher{
		cacheDao: cacheDao,
		producer: producer,
		interval: interval,
	}
}

// Run 阻塞轮询延迟队列直到ctx取消
func (d *CalcDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	logger.Infof("calc dispatcher started, interval %s", d.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("calc dispatcher stopped")
			return
		case <-ticker.C:
			d.dispatchDue(ctx)
		}
	}
}

// dispatchDue 把到期规则全部转发到触发主题。
// 先发消息再出队，宕机时最多重复触发，不会丢触发；重复由执行租约兜底
func (d *CalcDispatcher) dispatchDue(ctx context.Context) {
	ids, err := d.cacheDao.QueueDue(ctx, time.Now())
	if err != nil {
		logger.Errorf("poll delay queue failed: %v", err)
		return
	}
	for _, id := range ids {
		msg := []byte(strconv.FormatInt(id, 10))
		err := utils.Retry(3, 200*time.Millisecond, true, func() error {
			return d.producer.Produce(ctx, msg, msg)
		})
		if err != nil {
			logger.Errorf("publish trigger for rule %d failed: %v", id, err)
			// 发送失败就留在队列里，下一轮再试
			continue
		}
		if err := d.cacheDao.QueueRemove(ctx, id); err != nil {
			logger.Errorf("remove rule %d from delay queue failed: %v", id, err)
		}
		logger.Debugf("rule %d trigger dispatched", id)
	}
}
