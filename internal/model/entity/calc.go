package entity

import (
	"database/sql"
	"time"
)

// CalcRule 计算规则表结构。一条规则 = cron调度 + 取数窗口 + 用户脚本
type CalcRule struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name   string `gorm:"type:varchar(100);not null" json:"name"` // 规则名称
	Cron   string `gorm:"type:varchar(100);not null" json:"cron"` // cron表达式（秒级，6段）
	Script string `gorm:"type:text" json:"script"`                // 用户脚本源码，入口为main(data)
	// 取数窗口长度（秒），从锚点时间向前回看
	Offset int64 `gorm:"type:bigint;not null;default:0" json:"offset"`
	// 是否在运行。start置true，stop置false
	Running bool `gorm:"not null;default:false" json:"running"`
	// 最近一次手动试算的结果，试算会覆盖这个字段
	LastValue sql.NullString `gorm:"type:text" json:"last_value"`

	CreatedAt time.Time `json:"created_at"` // 创建时间
	UpdatedAt time.Time `json:"updated_at"` // 更新时间
}

func (CalcRule) TableName() string {
	return "calc_rule"
}

// CalcParam 计算参数表结构，一条规则挂多个源信号
type CalcParam struct {
	ID         int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CalcRuleID int64 `gorm:"index:idx_calc_rule;not null" json:"calc_rule_id"` // 索引。所属规则id
	// 信号定位三元组：协议 + 设备uid + 物模型标识符
	Protocol           string `gorm:"type:varchar(50)" json:"protocol"`
	DeviceUID          string `gorm:"type:varchar(100)" json:"device_uid"`
	IdentificationCode string `gorm:"type:varchar(100)" json:"identification_code"`

	SignalID   int64  `gorm:"type:bigint" json:"signal_id"`
	SignalName string `gorm:"type:varchar(100)" json:"signal_name"`
	// 展示名，作为脚本入参JSON里的key
	Name string `gorm:"type:varchar(100)" json:"name"`
	// 归约方式："原始"表示取整条窗口序列，其余取值为聚合函数名（mean等）
	Reduce string `gorm:"type:varchar(50)" json:"reduce"`

	CreatedAt time.Time `json:"created_at"` // 创建时间
	UpdatedAt time.Time `json:"updated_at"` // 更新时间
}

func (CalcParam) TableName() string {
	return "calc_param"
}
