package dao

import (
	"context"
	"iotflow/internal/model/entity"

	"gorm.io/gorm"
)

type CalcDao interface {
	// 创建规则
	CalcRuleCreate(ctx context.Context, rule *entity.CalcRule) error
	// 更新规则（名称/cron/脚本/窗口）
	CalcRuleUpdate(ctx context.Context, rule *entity.CalcRule) error
	// 删除规则及其全部参数
	CalcRuleDelete(ctx context.Context, ruleId int64) error
	// 根据id获取规则
	CalcRuleGetById(ctx context.Context, ruleId int64) (entity.CalcRule, error)
	// 规则分页
	CalcRuleGetPage(ctx context.Context, page, limit int) ([]entity.CalcRule, int64, error)
	// 更新运行状态
	CalcRuleUpdateRunning(ctx context.Context, ruleId int64, running bool) error
	// 更新手动试算结果
	CalcRuleUpdateLastValue(ctx context.Context, ruleId int64, value string) error

	// 根据规则id获取全部参数
	CalcParamListByRuleId(ctx context.Context, ruleId int64) ([]entity.CalcParam, error)
	// 创建或更新参数
	CalcParamSave(ctx context.Context, param *entity.CalcParam) error
	// 删除参数
	CalcParamDelete(ctx context.Context, paramId int64) error
}

type calcDao struct {
	db *gorm.DB
}

func NewCalcDao(db *gorm.DB) CalcDao {
	return &calcDao{db: db}
}

func (d *calcDao) CalcRuleCreate(ctx context.Context, rule *entity.CalcRule) error {
	return d.db.WithContext(ctx).Create(rule).Error
}

func (d *calcDao) CalcRuleUpdate(ctx context.Context, rule *entity.CalcRule) error {
	return d.db.WithContext(ctx).Model(&entity.CalcRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]interface{}{
			"name":   rule.Name,
			"cron":   rule.Cron,
			"script": rule.Script,
			"offset": rule.Offset,
		}).Error
}

func (d *calcDao) CalcRuleDelete(ctx context.Context, ruleId int64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("calc_rule_id = ?", ruleId).Delete(&entity.CalcParam{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", ruleId).Delete(&entity.CalcRule{}).Error
	})
}

func (d *calcDao) CalcRuleGetById(ctx context.Context, ruleId int64) (entity.CalcRule, error) {
	var rule entity.CalcRule
	err := d.db.WithContext(ctx).Where("id = ?", ruleId).First(&rule).Error
	return rule, err
}

func (d *calcDao) CalcRuleGetPage(ctx context.Context, page, limit int) ([]entity.CalcRule, int64, error) {
	var (
		rules []entity.CalcRule
		total int64
	)
	if err := d.db.WithContext(ctx).Model(&entity.CalcRule{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := d.db.WithContext(ctx).
		Order("id desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rules).Error
	return rules, total, err
}

func (d *calcDao) CalcRuleUpdateRunning(ctx context.Context, ruleId int64, running bool) error {
	return d.db.WithContext(ctx).Model(&entity.CalcRule{}).
		Where("id = ?", ruleId).
		Update("running", running).Error
}

func (d *calcDao) CalcRuleUpdateLastValue(ctx context.Context, ruleId int64, value string) error {
	return d.db.WithContext(ctx).Model(&entity.CalcRule{}).
		Where("id = ?", ruleId).
		Update("last_value", value).Error
}

func (d *calcDao) CalcParamListByRuleId(ctx context.Context, ruleId int64) ([]entity.CalcParam, error) {
	var params []entity.CalcParam
	err := d.db.WithContext(ctx).Where("calc_rule_id = ?", ruleId).Find(&params).Error
	return params, err
}

func (d *calcDao) CalcParamSave(ctx context.Context, param *entity.CalcParam) error {
	if param.ID > 0 {
		return d.db.WithContext(ctx).Save(param).Error
	}
	return d.db.WithContext(ctx).Create(param).Error
}

func (d *calcDao) CalcParamDelete(ctx context.Context, paramId int64) error {
	return d.db.WithContext(ctx).Where("id = ?", paramId).Delete(&entity.CalcParam{}).Error
}
