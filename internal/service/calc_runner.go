package service

import (
	"context"
	"fmt"
	"iotflow/conf"
	"iotflow/internal/consts"
	"iotflow/internal/dao"
	"iotflow/internal/model"
	"iotflow/pkg/js"
	"iotflow/pkg/logger"
	"iotflow/pkg/mongodb"
	"iotflow/pkg/tsdb"
	"iotflow/utils"
	"time"

	"github.com/goccy/go-json"
)

// 执行引擎。一条触发消息对应一次计算：
// 读缓存 → 算下一次执行时间 → 读锚点 → 按参数取数 → 跑脚本 → 落结果 → 推进锚点重新入队。
// 缓存或cron失效时规则回到空闲态，不再自续，需要外部start/refresh重新拉起；
// 取数、脚本、落库失败时锚点不动，按退避时间重新入队。

type CalcRunner struct {
	cacheDao dao.CalcCacheDao
	reader   tsdb.Reader
	docs     mongodb.DocWriter
	cfg      conf.CalcConfig
	// 沙箱执行函数，测试时可替换
	sandbox func(script, payload string, timeout time.Duration) (string, error)
}

func NewCalcRunner(cacheDao dao.CalcCacheDao, reader tsdb.Reader, docs mongodb.DocWriter, cfg conf.CalcConfig) *CalcRunner {
	return &CalcRunner{
		cacheDao: cacheDao,
		reader:   reader,
		docs:     docs,
		cfg:      cfg,
		sandbox:  js.RunMain,
	}
}

// Handle 处理一条触发消息。内部错误只记日志不上抛，消息无论成败都会被ack
func (r *CalcRunner) Handle(ctx context.Context, ruleId int64) {
	// 执行租约：防止重复投递导致同一条规则并发执行，双推进或跳号
	locked, err := r.cacheDao.TryLock(ctx, ruleId, r.cfg.LockTTL)
	if err != nil {
		logger.Errorf("calc rule %d acquire lock failed: %v", ruleId, err)
		return
	}
	if !locked {
		logger.Warnf("calc rule %d is already being processed, skip", ruleId)
		return
	}
	defer func() {
		if err := r.cacheDao.Unlock(ctx, ruleId); err != nil {
			logger.Errorf("calc rule %d release lock failed: %v", ruleId, err)
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, r.cfg.FiringTimeout)
	defer cancel()

	if err := r.fire(fctx, ruleId); err != nil {
		logger.Errorf("calc rule %d firing failed: %v", ruleId, err)
	}
}

// fire 执行一次计算。返回错误表示本次已按退避重排（或已回到空闲态），调用方只记日志
func (r *CalcRunner) fire(ctx context.Context, ruleId int64) error {
	cache, err := r.cacheDao.CacheGet(ctx, ruleId)
	if err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("load cache: %w", err))
	}
	if cache == nil {
		// 缓存没了说明规则已被stop或缓存被清，回到空闲态不再自续
		logger.Warnf("calc rule %d cache missing, rule goes idle", ruleId)
		return nil
	}

	next, err := NextCronTime(cache.Cron, time.Now())
	if err != nil {
		logger.Warnf("calc rule %d cron %q has no next occurrence, rule goes idle", ruleId, cache.Cron)
		return nil
	}

	anchor, ok, err := r.cacheDao.AnchorGet(ctx, ruleId)
	if err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("load anchor: %w", err))
	}
	if !ok {
		// 锚点不存在：规则从未start过或已被拆除，本条触发按无效处理
		logger.Warnf("calc rule %d anchor missing, trigger ignored", ruleId)
		return nil
	}

	start := anchor.Add(-time.Duration(cache.Offset) * time.Second)
	payload, err := buildPayload(ctx, r.reader, cache.Params, start, anchor)
	if err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("query series: %w", err))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("marshal payload: %w", err))
	}

	output, err := r.sandbox(cache.Script, string(data), r.cfg.FiringTimeout)
	if err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("run script: %w", err))
	}

	// 脚本输出解析回结构化形式落库，解析不动就存原文
	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		result = output
	}
	doc := model.CalcResult{
		CalcRuleID: ruleId,
		ExTime:     anchor,
		StartTime:  start,
		EndTime:    anchor,
		Param:      string(data),
		Script:     cache.Script,
		Result:     result,
		CreatedAt:  time.Now(),
	}
	collection := fmt.Sprintf("%s_%d", r.cfg.ResultCollection, ruleId)
	if err := r.docs.InsertOne(ctx, collection, doc); err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("insert result: %w", err))
	}

	// 推进锚点并重新入队，完成自续
	if err := r.cacheDao.AnchorSet(ctx, ruleId, next); err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("advance anchor: %w", err))
	}
	if err := r.cacheDao.QueueAdd(ctx, ruleId, next); err != nil {
		return r.requeue(ctx, ruleId, fmt.Errorf("requeue next: %w", err))
	}

	logger.Info("calc rule fired",
		logger.Pair("rule_id", ruleId),
		logger.Pair("window_start", start.Format(consts.TimeLayout)),
		logger.Pair("window_end", anchor.Format(consts.TimeLayout)),
		logger.Pair("next_time", next.Format(consts.TimeLayout)))
	return nil
}

// requeue 本次失败，锚点不动，退避一段时间后重新入队，避免规则无声卡死
func (r *CalcRunner) requeue(ctx context.Context, ruleId int64, cause error) error {
	retryAt := time.Now().Add(r.cfg.RetryBackoff)
	if err := r.cacheDao.QueueAdd(ctx, ruleId, retryAt); err != nil {
		return fmt.Errorf("%v (requeue also failed: %v)", cause, err)
	}
	return fmt.Errorf("%w (retry at %s)", cause, utils.Stamp2str(retryAt.Unix()))
}

// buildPayload 按参数逐个取数，拼出脚本入参：
// 归约方式为"原始"时取整条窗口序列（时间戳→数值），否则取单个聚合值。
// 窗口内没有数据的参数不进入入参，不算错误
func buildPayload(ctx context.Context, reader tsdb.Reader, params []model.CalcParamCache, start, end time.Time) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(params))
	for _, p := range params {
		if p.Reduce == consts.ReduceRaw {
			q := tsdb.WindowedQuery(p.Protocol, p.DeviceUID, p.IdentificationCode, start, end)
			points, err := reader.QuerySeries(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("param %q: %w", p.Name, err)
			}
			if len(points) == 0 {
				continue
			}
			series := make(map[string]float64, len(points))
			for _, pt := range points {
				series[pt.Time.Local().Format(consts.TimeLayout)] = pt.Value
			}
			payload[p.Name] = series
			continue
		}

		q, err := tsdb.ReduceQuery(p.Protocol, p.DeviceUID, p.IdentificationCode, start, end, p.Reduce)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", p.Name, err)
		}
		value, ok, err := reader.QueryScalar(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", p.Name, err)
		}
		if !ok {
			continue
		}
		payload[p.Name] = value
	}
	return payload, nil
}
