package service

import (
	"context"
	"iotflow/conf"
	"iotflow/internal/model"
	"iotflow/internal/model/entity"
	"iotflow/pkg/errors"
	"iotflow/pkg/errors/ecode"
	"iotflow/pkg/tsdb"
	"testing"
	"time"

	"gorm.io/gorm"
)

// 内存版的存储实现，覆盖调度路径和执行引擎的单元测试

type fakeCalcDao struct {
	rules      map[int64]entity.CalcRule
	params     map[int64][]entity.CalcParam
	lastValues map[int64]string
}

func newFakeCalcDao() *fakeCalcDao {
	return &fakeCalcDao{
		rules:      make(map[int64]entity.CalcRule),
		params:     make(map[int64][]entity.CalcParam),
		lastValues: make(map[int64]string),
	}
}

func (d *fakeCalcDao) CalcRuleCreate(ctx context.Context, rule *entity.CalcRule) error {
	if rule.ID == 0 {
		rule.ID = int64(len(d.rules) + 1)
	}
	d.rules[rule.ID] = *rule
	return nil
}

func (d *fakeCalcDao) CalcRuleUpdate(ctx context.Context, rule *entity.CalcRule) error {
	d.rules[rule.ID] = *rule
	return nil
}

func (d *fakeCalcDao) CalcRuleDelete(ctx context.Context, ruleId int64) error {
	delete(d.rules, ruleId)
	delete(d.params, ruleId)
	return nil
}

func (d *fakeCalcDao) CalcRuleGetById(ctx context.Context, ruleId int64) (entity.CalcRule, error) {
	rule, ok := d.rules[ruleId]
	if !ok {
		return rule, gorm.ErrRecordNotFound
	}
	return rule, nil
}

func (d *fakeCalcDao) CalcRuleGetPage(ctx context.Context, page, limit int) ([]entity.CalcRule, int64, error) {
	var rules []entity.CalcRule
	for _, r := range d.rules {
		rules = append(rules, r)
	}
	return rules, int64(len(rules)), nil
}

func (d *fakeCalcDao) CalcRuleUpdateRunning(ctx context.Context, ruleId int64, running bool) error {
	rule := d.rules[ruleId]
	rule.Running = running
	d.rules[ruleId] = rule
	return nil
}

func (d *fakeCalcDao) CalcRuleUpdateLastValue(ctx context.Context, ruleId int64, value string) error {
	d.lastValues[ruleId] = value
	return nil
}

func (d *fakeCalcDao) CalcParamListByRuleId(ctx context.Context, ruleId int64) ([]entity.CalcParam, error) {
	return d.params[ruleId], nil
}

func (d *fakeCalcDao) CalcParamSave(ctx context.Context, param *entity.CalcParam) error {
	d.params[param.CalcRuleID] = append(d.params[param.CalcRuleID], *param)
	return nil
}

func (d *fakeCalcDao) CalcParamDelete(ctx context.Context, paramId int64) error {
	return nil
}

type fakeCacheDao struct {
	caches  map[int64]*model.CalcCache
	queue   map[int64]time.Time
	anchors map[int64]time.Time
	locks   map[int64]bool
}

func newFakeCacheDao() *fakeCacheDao {
	return &fakeCacheDao{
		caches:  make(map[int64]*model.CalcCache),
		queue:   make(map[int64]time.Time),
		anchors: make(map[int64]time.Time),
		locks:   make(map[int64]bool),
	}
}

func (d *fakeCacheDao) CacheSet(ctx context.Context, cache *model.CalcCache) error {
	cp := *cache
	d.caches[cache.ID] = &cp
	return nil
}

func (d *fakeCacheDao) CacheGet(ctx context.Context, ruleId int64) (*model.CalcCache, error) {
	cache, ok := d.caches[ruleId]
	if !ok {
		return nil, nil
	}
	cp := *cache
	return &cp, nil
}

func (d *fakeCacheDao) CacheDel(ctx context.Context, ruleId int64) error {
	delete(d.caches, ruleId)
	return nil
}

func (d *fakeCacheDao) QueueAdd(ctx context.Context, ruleId int64, fireAt time.Time) error {
	d.queue[ruleId] = fireAt
	return nil
}

func (d *fakeCacheDao) QueueRemove(ctx context.Context, ruleId int64) error {
	delete(d.queue, ruleId)
	return nil
}

func (d *fakeCacheDao) QueueDue(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	for id, at := range d.queue {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (d *fakeCacheDao) QueueLen(ctx context.Context) (int64, error) {
	return int64(len(d.queue)), nil
}

func (d *fakeCacheDao) AnchorGet(ctx context.Context, ruleId int64) (time.Time, bool, error) {
	anchor, ok := d.anchors[ruleId]
	return anchor, ok, nil
}

func (d *fakeCacheDao) AnchorSet(ctx context.Context, ruleId int64, anchor time.Time) error {
	d.anchors[ruleId] = anchor
	return nil
}

func (d *fakeCacheDao) AnchorDel(ctx context.Context, ruleId int64) error {
	delete(d.anchors, ruleId)
	return nil
}

func (d *fakeCacheDao) TryLock(ctx context.Context, ruleId int64, ttl time.Duration) (bool, error) {
	if d.locks[ruleId] {
		return false, nil
	}
	d.locks[ruleId] = true
	return true, nil
}

func (d *fakeCacheDao) Unlock(ctx context.Context, ruleId int64) error {
	delete(d.locks, ruleId)
	return nil
}

// fakeReader 记录收到的查询并返回预设数据
type fakeReader struct {
	queries []string
	points  []tsdb.Point
	scalar  float64
	hasData bool
	err     error
}

func (r *fakeReader) QuerySeries(ctx context.Context, query string) ([]tsdb.Point, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	return r.points, nil
}

func (r *fakeReader) QueryScalar(ctx context.Context, query string) (float64, bool, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return 0, false, r.err
	}
	return r.scalar, r.hasData, nil
}

func testCalcConfig() conf.CalcConfig {
	return conf.CalcConfig{
		Topic:            "calc_rule_trigger",
		Group:            "calc_rule_worker",
		DispatchInterval: time.Second,
		FiringTimeout:    5 * time.Second,
		RetryBackoff:     time.Minute,
		LockTTL:          time.Minute,
		ResultCollection: "calc_result",
	}
}

func seedRule(d *fakeCalcDao, id int64, cronExpr string, offset int64) {
	d.rules[id] = entity.CalcRule{
		ID:     id,
		Name:   "温度日报",
		Cron:   cronExpr,
		Script: "function main(data) { return data; }",
		Offset: offset,
	}
}

func TestRefreshRuleDropsIncompleteParams(t *testing.T) {
	d := newFakeCalcDao()
	cacheDao := newFakeCacheDao()
	seedRule(d, 1, "0 0 12 * * *", 3600)
	d.params[1] = []entity.CalcParam{
		{CalcRuleID: 1, Protocol: "mqtt", DeviceUID: "dev-1", IdentificationCode: "temp",
			SignalName: "温度", Name: "temperature", Reduce: "原始"},
		// 缺少device_uid，应被丢弃
		{CalcRuleID: 1, Protocol: "mqtt", IdentificationCode: "hum",
			SignalName: "湿度", Name: "humidity", Reduce: "mean"},
	}
	s := NewCalcService(d, cacheDao, &fakeReader{}, testCalcConfig())

	cache, err := s.RefreshRule(context.Background(), 1)
	if err != nil {
		t.Fatalf("RefreshRule failed: %v", err)
	}
	if len(cache.Params) != 1 {
		t.Fatalf("expected 1 complete param, got %d", len(cache.Params))
	}
	if cache.Params[0].Name != "temperature" {
		t.Fatalf("unexpected param kept: %+v", cache.Params[0])
	}
	stored, _ := cacheDao.CacheGet(context.Background(), 1)
	if stored == nil || len(stored.Params) != 1 {
		t.Fatalf("cache not persisted correctly: %+v", stored)
	}
}

func TestRefreshRuleNotFound(t *testing.T) {
	s := NewCalcService(newFakeCalcDao(), newFakeCacheDao(), &fakeReader{}, testCalcConfig())

	_, err := s.RefreshRule(context.Background(), 99)
	if err == nil {
		t.Fatal("expected error for missing rule")
	}
	if code, _ := errors.DecodeErr(err); code != ecode.NotFoundErr {
		t.Fatalf("expected NotFoundErr, got code %d", code)
	}
}

func TestStartArmsRule(t *testing.T) {
	d := newFakeCalcDao()
	cacheDao := newFakeCacheDao()
	seedRule(d, 1, "0 0 12 * * *", 3600)
	s := NewCalcService(d, cacheDao, &fakeReader{}, testCalcConfig())

	if err := s.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	next, ok := cacheDao.queue[1]
	if !ok {
		t.Fatal("rule not in delay queue after start")
	}
	if !next.After(time.Now()) {
		t.Fatalf("next fire time not in the future: %v", next)
	}
	anchor, ok := cacheDao.anchors[1]
	if !ok || !anchor.Equal(next) {
		t.Fatalf("anchor should equal first fire time, got %v ok=%v", anchor, ok)
	}
	if !d.rules[1].Running {
		t.Fatal("running flag not set")
	}
}

func TestStartInvalidCron(t *testing.T) {
	d := newFakeCalcDao()
	seedRule(d, 1, "not a cron", 3600)
	s := NewCalcService(d, newFakeCacheDao(), &fakeReader{}, testCalcConfig())

	err := s.Start(context.Background(), 1)
	if err == nil {
		t.Fatal("expected scheduling error")
	}
	if code, _ := errors.DecodeErr(err); code != ecode.SchedulingErr {
		t.Fatalf("expected SchedulingErr, got code %d", code)
	}
}

func TestStopTearsDownState(t *testing.T) {
	d := newFakeCalcDao()
	cacheDao := newFakeCacheDao()
	seedRule(d, 1, "0 0 12 * * *", 3600)
	s := NewCalcService(d, cacheDao, &fakeReader{}, testCalcConfig())

	if err := s.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	found, err := s.Stop(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !found {
		t.Fatal("Stop should report the rule as found")
	}
	if _, ok := cacheDao.queue[1]; ok {
		t.Fatal("delay queue entry not removed")
	}
	if _, ok := cacheDao.caches[1]; ok {
		t.Fatal("rule cache not removed")
	}
	if _, ok := cacheDao.anchors[1]; ok {
		t.Fatal("anchor not removed")
	}
	if d.rules[1].Running {
		t.Fatal("running flag not cleared")
	}
}

func TestStopIsIdempotentForUnknownRule(t *testing.T) {
	// 规则42从未创建过，stop返回false且无错误
	s := NewCalcService(newFakeCalcDao(), newFakeCacheDao(), &fakeReader{}, testCalcConfig())

	found, err := s.Stop(context.Background(), 42)
	if err != nil {
		t.Fatalf("Stop on unknown rule should not error: %v", err)
	}
	if found {
		t.Fatal("Stop on unknown rule should return false")
	}
}

func TestMockCalcMissingCache(t *testing.T) {
	s := NewCalcService(newFakeCalcDao(), newFakeCacheDao(), &fakeReader{}, testCalcConfig())

	_, err := s.MockCalc(context.Background(), time.Now().Add(-time.Hour), time.Now(), 7)
	if err == nil {
		t.Fatal("expected error when cache is missing")
	}
	if code, _ := errors.DecodeErr(err); code != ecode.NotFoundErr {
		t.Fatalf("expected NotFoundErr, got code %d", code)
	}
}

func TestMockCalcPersistsPreview(t *testing.T) {
	d := newFakeCalcDao()
	cacheDao := newFakeCacheDao()
	seedRule(d, 1, "0 0 12 * * *", 3600)
	cacheDao.caches[1] = &model.CalcCache{
		ID:     1,
		Cron:   "0 0 12 * * *",
		Script: "function main(data) { return data; }",
		Offset: 3600,
		Params: []model.CalcParamCache{
			{Protocol: "mqtt", DeviceUID: "dev-1", IdentificationCode: "temp",
				SignalName: "温度", Name: "temperature", Reduce: "mean"},
		},
	}
	reader := &fakeReader{scalar: 23.5, hasData: true}
	s := NewCalcService(d, cacheDao, reader, testCalcConfig())

	end := time.Now()
	result, err := s.MockCalc(context.Background(), end.Add(-time.Hour), end, 1)
	if err != nil {
		t.Fatalf("MockCalc failed: %v", err)
	}
	if result != `{"temperature":23.5}` {
		t.Fatalf("unexpected result: %s", result)
	}
	if d.lastValues[1] != result {
		t.Fatalf("preview value not persisted, got %q", d.lastValues[1])
	}
	// 调度状态不应被试算触碰
	if len(cacheDao.queue) != 0 || len(cacheDao.anchors) != 0 {
		t.Fatal("mock calc must not touch scheduling state")
	}
}

func TestPendingCount(t *testing.T) {
	cacheDao := newFakeCacheDao()
	cacheDao.queue[1] = time.Now().Add(time.Minute)
	cacheDao.queue[2] = time.Now().Add(time.Hour)
	s := NewCalcService(newFakeCalcDao(), cacheDao, &fakeReader{}, testCalcConfig())

	n, err := s.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pending rules, got %d", n)
	}
}

func TestNextCronTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	next, err := NextCronTime("0 0 12 * * *", now)
	if err != nil {
		t.Fatalf("NextCronTime failed: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	if _, err := NextCronTime("bogus", now); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
