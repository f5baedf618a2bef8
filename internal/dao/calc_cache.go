package dao

import (
	"context"
	"fmt"
	"iotflow/internal/consts"
	"iotflow/internal/model"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// CalcCacheDao 规则在redis里的全部调度状态：
// 缓存快照（hash）、延迟队列（zset）、窗口锚点（string）、执行租约（string+TTL）。
// 这三类key属于同一条规则的一份逻辑记录，start/stop/refresh要一起维护。
type CalcCacheDao interface {
	// CacheSet 写入规则缓存快照，无条件覆盖旧值
	CacheSet(ctx context.Context, cache *model.CalcCache) error
	// CacheGet 读取规则缓存快照，未命中返回(nil, nil)
	CacheGet(ctx context.Context, ruleId int64) (*model.CalcCache, error)
	// CacheDel 删除规则缓存快照
	CacheDel(ctx context.Context, ruleId int64) error

	// QueueAdd 把规则下次执行时间写入延迟队列
	QueueAdd(ctx context.Context, ruleId int64, fireAt time.Time) error
	// QueueRemove 把规则移出延迟队列
	QueueRemove(ctx context.Context, ruleId int64) error
	// QueueDue 取出执行时间不晚于now的全部规则id
	QueueDue(ctx context.Context, now time.Time) ([]int64, error)
	// QueueLen 延迟队列长度
	QueueLen(ctx context.Context) (int64, error)

	// AnchorGet 读取窗口锚点，key不存在时ok为false
	AnchorGet(ctx context.Context, ruleId int64) (anchor time.Time, ok bool, err error)
	// AnchorSet 写入窗口锚点
	AnchorSet(ctx context.Context, ruleId int64, anchor time.Time) error
	// AnchorDel 删除窗口锚点
	AnchorDel(ctx context.Context, ruleId int64) error

	// TryLock 尝试拿到规则的执行租约，已被占用时返回false
	TryLock(ctx context.Context, ruleId int64, ttl time.Duration) (bool, error)
	// Unlock 释放执行租约
	Unlock(ctx context.Context, ruleId int64) error
}

type calcCacheDao struct {
	rdb *redis.Client
}

func NewCalcCacheDao(rdb *redis.Client) CalcCacheDao {
	return &calcCacheDao{rdb: rdb}
}

func anchorKey(ruleId int64) string {
	return fmt.Sprintf("%s%d", consts.CalcQueueParamPrefix, ruleId)
}

func lockKey(ruleId int64) string {
	return fmt.Sprintf("%s%d", consts.CalcLockPrefix, ruleId)
}

func ruleField(ruleId int64) string {
	return strconv.FormatInt(ruleId, 10)
}

func (d *calcCacheDao) CacheSet(ctx context.Context, cache *model.CalcCache) error {
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return d.rdb.HSet(ctx, consts.CalcCacheKey, ruleField(cache.ID), string(data)).Err()
}

func (d *calcCacheDao) CacheGet(ctx context.Context, ruleId int64) (*model.CalcCache, error) {
	data, err := d.rdb.HGet(ctx, consts.CalcCacheKey, ruleField(ruleId)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cache model.CalcCache
	if err := json.Unmarshal([]byte(data), &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func (d *calcCacheDao) CacheDel(ctx context.Context, ruleId int64) error {
	return d.rdb.HDel(ctx, consts.CalcCacheKey, ruleField(ruleId)).Err()
}

func (d *calcCacheDao) QueueAdd(ctx context.Context, ruleId int64, fireAt time.Time) error {
	return d.rdb.ZAdd(ctx, consts.CalcQueueKey, &redis.Z{
		Score:  float64(fireAt.Unix()),
		Member: ruleField(ruleId),
	}).Err()
}

func (d *calcCacheDao) QueueRemove(ctx context.Context, ruleId int64) error {
	return d.rdb.ZRem(ctx, consts.CalcQueueKey, ruleField(ruleId)).Err()
}

func (d *calcCacheDao) QueueDue(ctx context.Context, now time.Time) ([]int64, error) {
	members, err := d.rdb.ZRangeByScore(ctx, consts.CalcQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, parseErr := strconv.ParseInt(m, 10, 64)
		if parseErr != nil {
			// 脏数据直接清掉，避免每轮轮询都撞上
			d.rdb.ZRem(ctx, consts.CalcQueueKey, m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *calcCacheDao) QueueLen(ctx context.Context) (int64, error) {
	return d.rdb.ZCard(ctx, consts.CalcQueueKey).Result()
}

func (d *calcCacheDao) AnchorGet(ctx context.Context, ruleId int64) (time.Time, bool, error) {
	data, err := d.rdb.Get(ctx, anchorKey(ruleId)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(sec, 0), true, nil
}

func (d *calcCacheDao) AnchorSet(ctx context.Context, ruleId int64, anchor time.Time) error {
	return d.rdb.Set(ctx, anchorKey(ruleId), strconv.FormatInt(anchor.Unix(), 10), 0).Err()
}

func (d *calcCacheDao) AnchorDel(ctx context.Context, ruleId int64) error {
	return d.rdb.Del(ctx, anchorKey(ruleId)).Err()
}

func (d *calcCacheDao) TryLock(ctx context.Context, ruleId int64, ttl time.Duration) (bool, error) {
	return d.rdb.SetNX(ctx, lockKey(ruleId), "1", ttl).Result()
}

func (d *calcCacheDao) Unlock(ctx context.Context, ruleId int64) error {
	return d.rdb.Del(ctx, lockKey(ruleId)).Err()
}
