package service

import (
	"context"
	stderrors "errors"
	"iotflow/conf"
	"iotflow/internal/dao"
	"iotflow/internal/model"
	"iotflow/internal/model/entity"
	"iotflow/pkg/errors"
	"iotflow/pkg/errors/ecode"
	"iotflow/pkg/js"
	"iotflow/pkg/logger"
	"iotflow/pkg/tsdb"
	"iotflow/utils"
	"time"

	"github.com/goccy/go-json"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// 计算规则的调度入口：start/stop/refresh_rule/mock_calc。
// start把规则缓存建好、算出下一次执行时间写进延迟队列；
// 真正的周期执行由dispatcher+consumer驱动，见calc_dispatch.go和calc_runner.go。

// cron表达式为6段秒级格式，例如 "0 0 12 * * *"
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// NextCronTime 计算now之后最近的一次cron触发时间
func NextCronTime(expr string, now time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now)
	if next.IsZero() {
		return time.Time{}, stderrors.New("cron expression has no future occurrence")
	}
	return next, nil
}

type CalcService struct {
	dao      dao.CalcDao
	cacheDao dao.CalcCacheDao
	reader   tsdb.Reader
	cfg      conf.CalcConfig
	// 沙箱执行函数，测试时可替换
	sandbox func(script, payload string, timeout time.Duration) (string, error)
}

func NewCalcService(d dao.CalcDao, cacheDao dao.CalcCacheDao, reader tsdb.Reader, cfg conf.CalcConfig) *CalcService {
	return &CalcService{
		dao:      d,
		cacheDao: cacheDao,
		reader:   reader,
		cfg:      cfg,
		sandbox:  js.RunMain,
	}
}

// RefreshRule 重建规则缓存：读库、过滤掉定位信息不全的参数、覆盖写入redis。
// 规则或参数编辑后必须调用，否则执行引擎会拿到旧数据。
func (s *CalcService) RefreshRule(ctx context.Context, ruleId int64) (*model.CalcCache, error) {
	rule, err := s.dao.CalcRuleGetById(ctx, ruleId)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithCode(ecode.NotFoundErr, "计算规则不存在: %d", ruleId)
		}
		return nil, errors.Wrap(err, ecode.StoreErr, "查询计算规则失败")
	}
	params, err := s.dao.CalcParamListByRuleId(ctx, ruleId)
	if err != nil {
		return nil, errors.Wrap(err, ecode.StoreErr, "查询计算参数失败")
	}

	cache := &model.CalcCache{
		ID:     rule.ID,
		Name:   rule.Name,
		Cron:   rule.Cron,
		Script: rule.Script,
		Offset: rule.Offset,
	}
	for _, p := range params {
		pc := model.CalcParamCache{
			Protocol:           p.Protocol,
			DeviceUID:          p.DeviceUID,
			IdentificationCode: p.IdentificationCode,
			SignalName:         p.SignalName,
			Name:               p.Name,
			Reduce:             p.Reduce,
		}
		// 字段不全的参数静默丢弃，不算错误
		if !pc.Complete() {
			logger.Warnf("calc rule %d param %d incomplete, dropped from cache", ruleId, p.ID)
			continue
		}
		cache.Params = append(cache.Params, pc)
	}

	if err := s.cacheDao.CacheSet(ctx, cache); err != nil {
		return nil, errors.Wrap(err, ecode.SerializationErr, "写入规则缓存失败")
	}
	return cache, nil
}

// Start 启动规则：重建缓存、算出下一次执行时间入延迟队列、落锚点、置running=true
func (s *CalcService) Start(ctx context.Context, ruleId int64) error {
	cache, err := s.RefreshRule(ctx, ruleId)
	if err != nil {
		return err
	}
	next, err := NextCronTime(cache.Cron, time.Now())
	if err != nil {
		return errors.Wrap(err, ecode.SchedulingErr, "cron表达式无法计算下一次执行时间")
	}
	if err := s.cacheDao.QueueAdd(ctx, ruleId, next); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "写入延迟队列失败")
	}
	// 锚点是首次执行的窗口右边界，执行引擎每次成功后推进它
	if err := s.cacheDao.AnchorSet(ctx, ruleId, next); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "写入窗口锚点失败")
	}
	if err := s.dao.CalcRuleUpdateRunning(ctx, ruleId, true); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "更新运行状态失败")
	}
	logger.Info("calc rule started",
		logger.Pair("rule_id", ruleId),
		logger.Pair("next_time", utils.Stamp2str(next.Unix())))
	return nil
}

// Stop 停止规则，清掉延迟队列、缓存、锚点，置running=false。
// 规则不存在时返回false，不算错误，stop幂等
func (s *CalcService) Stop(ctx context.Context, ruleId int64) (bool, error) {
	_, err := s.dao.CalcRuleGetById(ctx, ruleId)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, ecode.StoreErr, "查询计算规则失败")
	}
	if err := s.teardown(ctx, ruleId); err != nil {
		return false, err
	}
	if err := s.dao.CalcRuleUpdateRunning(ctx, ruleId, false); err != nil {
		return false, errors.Wrap(err, ecode.StoreErr, "更新运行状态失败")
	}
	logger.Info("calc rule stopped", logger.Pair("rule_id", ruleId))
	return true, nil
}

// teardown 清除规则的全部调度状态
func (s *CalcService) teardown(ctx context.Context, ruleId int64) error {
	if err := s.cacheDao.QueueRemove(ctx, ruleId); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "移除延迟队列失败")
	}
	if err := s.cacheDao.CacheDel(ctx, ruleId); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "删除规则缓存失败")
	}
	if err := s.cacheDao.AnchorDel(ctx, ruleId); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "删除窗口锚点失败")
	}
	return nil
}

// MockCalc 手动试算：用调用方给定的窗口走一遍取数+脚本，
// 结果写回规则行的last_value字段，不落结果集合、不动调度状态
func (s *CalcService) MockCalc(ctx context.Context, start, end time.Time, ruleId int64) (string, error) {
	cache, err := s.cacheDao.CacheGet(ctx, ruleId)
	if err != nil {
		return "", errors.Wrap(err, ecode.StoreErr, "读取规则缓存失败")
	}
	if cache == nil {
		return "", errors.WithCode(ecode.NotFoundErr, "规则缓存不存在: %d", ruleId)
	}

	payload, err := buildPayload(ctx, s.reader, cache.Params, start, end)
	if err != nil {
		return "", errors.Wrap(err, ecode.StoreErr, "查询时序数据失败")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, ecode.SerializationErr, "序列化脚本入参失败")
	}

	result, err := s.sandbox(cache.Script, string(data), s.cfg.FiringTimeout)
	if err != nil {
		return "", errors.Wrap(err, ecode.ScriptErr, "脚本执行失败")
	}

	if err := s.dao.CalcRuleUpdateLastValue(ctx, ruleId, result); err != nil {
		return "", errors.Wrap(err, ecode.StoreErr, "保存试算结果失败")
	}
	return result, nil
}

// PendingCount 延迟队列中等待触发的规则数，用于观测调度积压
func (s *CalcService) PendingCount(ctx context.Context) (int64, error) {
	n, err := s.cacheDao.QueueLen(ctx)
	if err != nil {
		return 0, errors.Wrap(err, ecode.StoreErr, "查询延迟队列长度失败")
	}
	return n, nil
}

// CRUD支撑，handler层调用

func (s *CalcService) RuleCreate(ctx context.Context, req model.CalcRuleCreateReq) (*entity.CalcRule, error) {
	if _, err := cronParser.Parse(req.Cron); err != nil {
		return nil, errors.Wrap(err, ecode.ValidateErr, "cron表达式不合法")
	}
	rule := &entity.CalcRule{
		Name:   req.Name,
		Cron:   req.Cron,
		Script: req.Script,
		Offset: req.Offset,
	}
	if err := s.dao.CalcRuleCreate(ctx, rule); err != nil {
		return nil, errors.Wrap(err, ecode.StoreErr, "创建计算规则失败")
	}
	return rule, nil
}

func (s *CalcService) RuleUpdate(ctx context.Context, req model.CalcRuleUpdateReq) error {
	rule, err := s.dao.CalcRuleGetById(ctx, req.ID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithCode(ecode.NotFoundErr, "计算规则不存在: %d", req.ID)
		}
		return errors.Wrap(err, ecode.StoreErr, "查询计算规则失败")
	}
	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Cron != "" {
		if _, err := cronParser.Parse(req.Cron); err != nil {
			return errors.Wrap(err, ecode.ValidateErr, "cron表达式不合法")
		}
		rule.Cron = req.Cron
	}
	if req.Script != "" {
		rule.Script = req.Script
	}
	if req.Offset > 0 {
		rule.Offset = req.Offset
	}
	if err := s.dao.CalcRuleUpdate(ctx, &rule); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "更新计算规则失败")
	}
	// 运行中的规则编辑后立即刷新缓存，保证执行引擎拿到新数据
	if rule.Running {
		if _, err := s.RefreshRule(ctx, req.ID); err != nil {
			return err
		}
	}
	return nil
}

// RuleDelete 删除规则前先清掉调度状态，否则延迟队列里会留下永远打不中的幽灵触发
func (s *CalcService) RuleDelete(ctx context.Context, ruleId int64) error {
	if err := s.teardown(ctx, ruleId); err != nil {
		return err
	}
	if err := s.dao.CalcRuleDelete(ctx, ruleId); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "删除计算规则失败")
	}
	return nil
}

func (s *CalcService) RuleGetById(ctx context.Context, ruleId int64) (entity.CalcRule, error) {
	rule, err := s.dao.CalcRuleGetById(ctx, ruleId)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return rule, errors.WithCode(ecode.NotFoundErr, "计算规则不存在: %d", ruleId)
		}
		return rule, errors.Wrap(err, ecode.StoreErr, "查询计算规则失败")
	}
	return rule, nil
}

func (s *CalcService) RuleGetPage(ctx context.Context, page, limit int) ([]entity.CalcRule, int64, error) {
	rules, total, err := s.dao.CalcRuleGetPage(ctx, page, limit)
	if err != nil {
		return nil, 0, errors.Wrap(err, ecode.StoreErr, "查询规则列表失败")
	}
	return rules, total, nil
}

func (s *CalcService) ParamList(ctx context.Context, ruleId int64) ([]entity.CalcParam, error) {
	params, err := s.dao.CalcParamListByRuleId(ctx, ruleId)
	if err != nil {
		return nil, errors.Wrap(err, ecode.StoreErr, "查询计算参数失败")
	}
	return params, nil
}

func (s *CalcService) ParamSave(ctx context.Context, req model.CalcParamSaveReq) error {
	param := &entity.CalcParam{
		ID:                 req.ID,
		CalcRuleID:         req.CalcRuleID,
		Protocol:           req.Protocol,
		DeviceUID:          req.DeviceUID,
		IdentificationCode: req.IdentificationCode,
		SignalID:           req.SignalID,
		SignalName:         req.SignalName,
		Name:               req.Name,
		Reduce:             req.Reduce,
	}
	if err := s.dao.CalcParamSave(ctx, param); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "保存计算参数失败")
	}
	// 参数归属的规则若在运行，同步刷新缓存
	rule, err := s.dao.CalcRuleGetById(ctx, req.CalcRuleID)
	if err == nil && rule.Running {
		if _, err := s.RefreshRule(ctx, req.CalcRuleID); err != nil {
			return err
		}
	}
	return nil
}

func (s *CalcService) ParamDelete(ctx context.Context, paramId int64) error {
	if err := s.dao.CalcParamDelete(ctx, paramId); err != nil {
		return errors.Wrap(err, ecode.StoreErr, "删除计算参数失败")
	}
	return nil
}
