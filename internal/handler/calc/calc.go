package calc

import (
	"iotflow/internal/model"
	"iotflow/internal/service"
	"iotflow/pkg/errors"
	"iotflow/pkg/errors/ecode"
	"iotflow/pkg/response"
	"iotflow/pkg/validator"
	"iotflow/utils"
	"time"

	"github.com/gin-gonic/gin"
)

type CalcHandler struct {
	calcService *service.CalcService
}

func NewCalcHandler(calcService *service.CalcService) *CalcHandler {
	return &CalcHandler{
		calcService: calcService,
	}
}

// RuleCreate 创建计算规则
func (h *CalcHandler) RuleCreate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleCreateReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		rule, err := h.calcService.RuleCreate(ctx, req)
		response.JSON(ctx, err, rule)
	}
}

// RuleUpdate 更新计算规则，运行中的规则会同步刷新缓存
func (h *CalcHandler) RuleUpdate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleUpdateReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		response.JSON(ctx, h.calcService.RuleUpdate(ctx, req), nil)
	}
}

// RuleDelete 删除计算规则，同时拆除全部调度状态
func (h *CalcHandler) RuleDelete() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleIdReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		response.JSON(ctx, h.calcService.RuleDelete(ctx, req.ID), nil)
	}
}

// RuleDetail 规则详情
func (h *CalcHandler) RuleDetail() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleIdReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		rule, err := h.calcService.RuleGetById(ctx, req.ID)
		response.JSON(ctx, err, rule)
	}
}

// RulePage 规则分页
func (h *CalcHandler) RulePage() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRulePageReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		rules, total, err := h.calcService.RuleGetPage(ctx, req.Page, req.Limit)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"list": rules, "total": total})
	}
}

// RuleStart 启动规则调度
func (h *CalcHandler) RuleStart() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleIdReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		response.JSON(ctx, h.calcService.Start(ctx, req.ID), nil)
	}
}

// RuleStop 停止规则调度，规则不存在时found为false
func (h *CalcHandler) RuleStop() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleIdReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		found, err := h.calcService.Stop(ctx, req.ID)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"found": found})
	}
}

// RuleRefresh 重建规则缓存，不改动调度状态
func (h *CalcHandler) RuleRefresh() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleIdReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		cache, err := h.calcService.RefreshRule(ctx, req.ID)
		response.JSON(ctx, err, cache)
	}
}

// MockCalc 手动试算，窗口由请求指定
func (h *CalcHandler) MockCalc() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.MockCalcReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		start := utils.Str2stamp(req.StartTime)
		if start == 0 {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, "start_time格式错误"), nil)
			return
		}
		end := utils.Str2stamp(req.EndTime)
		if end == 0 {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, "end_time格式错误"), nil)
			return
		}
		if end <= start {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, "end_time必须晚于start_time"), nil)
			return
		}
		result, err := h.calcService.MockCalc(ctx, time.Unix(start, 0), time.Unix(end, 0), req.ID)
		response.JSON(ctx, err, result)
	}
}

// QueuePending 延迟队列中等待触发的规则数
func (h *CalcHandler) QueuePending() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		n, err := h.calcService.PendingCount(ctx)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"pending": n})
	}
}

// ParamList 规则的全部参数
func (h *CalcHandler) ParamList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleIdReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		params, err := h.calcService.ParamList(ctx, req.ID)
		response.JSON(ctx, err, params)
	}
}

// ParamSave 创建或更新参数
func (h *CalcHandler) ParamSave() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcParamSaveReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		response.JSON(ctx, h.calcService.ParamSave(ctx, req), nil)
	}
}

// ParamDelete 删除参数
func (h *CalcHandler) ParamDelete() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.CalcRuleIdReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.WithCode(ecode.ValidateErr, validator.Translate(err)), nil)
			return
		}
		response.JSON(ctx, h.calcService.ParamDelete(ctx, req.ID), nil)
	}
}
