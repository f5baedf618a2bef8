package service

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type fakeProducer struct {
	messages [][]byte
	failures int // 前failures次Produce返回错误
}

func (p *fakeProducer) Produce(ctx context.Context, key, value []byte) error {
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("broker unavailable")
	}
	p.messages = append(p.messages, value)
	return nil
}

func (p *fakeProducer) Close() {}

func TestDispatchDuePublishesAndDequeues(t *testing.T) {
	cacheDao := newFakeCacheDao()
	now := time.Now()
	cacheDao.queue[1] = now.Add(-time.Second) // 已到期
	cacheDao.queue[2] = now.Add(time.Hour)    // 未到期
	producer := &fakeProducer{}
	d := NewCalcDispatcher(cacheDao, producer, time.Second)

	d.dispatchDue(context.Background())

	if len(producer.messages) != 1 {
		t.Fatalf("expected 1 trigger message, got %d", len(producer.messages))
	}
	if string(producer.messages[0]) != "1" {
		t.Fatalf("unexpected trigger payload: %s", producer.messages[0])
	}
	if _, ok := cacheDao.queue[1]; ok {
		t.Fatal("dispatched rule must be removed from the delay queue")
	}
	if _, ok := cacheDao.queue[2]; !ok {
		t.Fatal("not-yet-due rule must stay in the delay queue")
	}
}

func TestDispatchDueKeepsEntryOnPublishFailure(t *testing.T) {
	cacheDao := newFakeCacheDao()
	cacheDao.queue[1] = time.Now().Add(-time.Second)
	// 重试3次全部失败
	producer := &fakeProducer{failures: 3}
	d := NewCalcDispatcher(cacheDao, producer, time.Second)

	d.dispatchDue(context.Background())

	if _, ok := cacheDao.queue[1]; !ok {
		t.Fatal("rule must stay queued when publish fails, next tick retries")
	}
	if len(producer.messages) != 0 {
		t.Fatalf("no message should have been recorded, got %d", len(producer.messages))
	}
}

func TestDispatchDueRetriesTransientPublishFailure(t *testing.T) {
	cacheDao := newFakeCacheDao()
	cacheDao.queue[1] = time.Now().Add(-time.Second)
	// 第一次失败，重试成功
	producer := &fakeProducer{failures: 1}
	d := NewCalcDispatcher(cacheDao, producer, time.Second)

	d.dispatchDue(context.Background())

	if len(producer.messages) != 1 {
		t.Fatalf("expected publish to succeed on retry, got %d messages", len(producer.messages))
	}
	if _, ok := cacheDao.queue[1]; ok {
		t.Fatal("dispatched rule must be removed from the delay queue")
	}
}
