package model

import (
	"time"
)

// CalcParamCache 参数在缓存里的形态，只保留执行引擎需要的字段
type CalcParamCache struct {
	Protocol           string `json:"protocol"`
	DeviceUID          string `json:"device_uid"`
	IdentificationCode string `json:"identification_code"`
	SignalName         string `json:"signal_name"`
	Name               string `json:"name"`
	Reduce             string `json:"reduce"`
}

// CalcCache 规则和参数合并后的缓存快照，执行引擎只读这份数据，不回查数据库。
// 规则或参数变更后必须重建，否则执行引擎会用到旧脚本/旧窗口。
type CalcCache struct {
	ID     int64            `json:"id"`
	Name   string           `json:"name"`
	Cron   string           `json:"cron"`
	Script string           `json:"script"`
	Offset int64            `json:"offset"`
	Params []CalcParamCache `json:"params"`
}

// Complete 参数定位信息是否齐全，不齐全的参数在建缓存时被丢弃
func (p CalcParamCache) Complete() bool {
	return p.Protocol != "" && p.DeviceUID != "" && p.IdentificationCode != "" &&
		p.SignalName != "" && p.Name != "" && p.Reduce != ""
}

// CalcResult 一次计算的落库文档，写入规则专属集合后不再修改
type CalcResult struct {
	CalcRuleID int64       `bson:"calc_rule_id" json:"calc_rule_id"`
	ExTime     time.Time   `bson:"ex_time" json:"ex_time"`         // 本次触发的锚点时间
	StartTime  time.Time   `bson:"start_time" json:"start_time"`   // 查询窗口左边界
	EndTime    time.Time   `bson:"end_time" json:"end_time"`       // 查询窗口右边界
	Param      string      `bson:"param" json:"param"`             // 脚本入参的原始JSON
	Script     string      `bson:"script" json:"script"`           // 脚本原文
	Result     interface{} `bson:"result" json:"result"`           // 脚本输出，解析回结构化形式
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
}

// CalcRuleCreateReq 创建规则请求
type CalcRuleCreateReq struct {
	Name   string `json:"name" binding:"required"`
	Cron   string `json:"cron" binding:"required"`
	Script string `json:"script" binding:"required"`
	Offset int64  `json:"offset" binding:"required,gt=0"`
}

// CalcRuleUpdateReq 更新规则请求
type CalcRuleUpdateReq struct {
	ID     int64  `json:"id" binding:"required"`
	Name   string `json:"name"`
	Cron   string `json:"cron"`
	Script string `json:"script"`
	Offset int64  `json:"offset"`
}

// CalcRuleIdReq 按规则id操作的通用请求
type CalcRuleIdReq struct {
	ID int64 `json:"id" form:"id" binding:"required"`
}

// CalcRulePageReq 规则分页请求
type CalcRulePageReq struct {
	Page  int `json:"page" form:"page" binding:"required,gte=1"`
	Limit int `json:"limit" form:"limit" binding:"required,gte=1,lte=100"`
}

// CalcParamSaveReq 创建/更新参数请求
type CalcParamSaveReq struct {
	ID                 int64  `json:"id"`
	CalcRuleID         int64  `json:"calc_rule_id" binding:"required"`
	Protocol           string `json:"protocol" binding:"required"`
	DeviceUID          string `json:"device_uid" binding:"required"`
	IdentificationCode string `json:"identification_code" binding:"required"`
	SignalID           int64  `json:"signal_id"`
	SignalName         string `json:"signal_name" binding:"required"`
	Name               string `json:"name" binding:"required"`
	Reduce             string `json:"reduce" binding:"required"`
}

// MockCalcReq 手动试算请求，窗口由调用方直接指定
type MockCalcReq struct {
	ID        int64  `json:"id" binding:"required"`
	StartTime string `json:"start_time" binding:"required"` // 2006-01-02 15:04:05
	EndTime   string `json:"end_time" binding:"required"`
}
