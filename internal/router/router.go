package router

import (
	"iotflow/internal/handler/calc"
	"iotflow/internal/handler/ping"
	"iotflow/internal/middleware"

	"github.com/gin-gonic/gin"
)

type ApiRouter struct {
	calcHandler *calc.CalcHandler
}

func NewApiRouter(calcHandler *calc.CalcHandler) *ApiRouter {
	return &ApiRouter{calcHandler: calcHandler}
}

func (api *ApiRouter) Load(g *gin.Engine) {

	g.GET("/ping", ping.Ping())

	// 管理接口挂防抖，/ping不挂，避免健康检查被限流
	base := g.Group("/api/v1", middleware.AntiDuplicateMiddleware())

	r := base.Group("/calc/rule")
	{
		r.POST("/create", api.calcHandler.RuleCreate())
		r.POST("/update", api.calcHandler.RuleUpdate())
		r.POST("/delete", api.calcHandler.RuleDelete())
		r.GET("/detail", api.calcHandler.RuleDetail())
		r.GET("/page", api.calcHandler.RulePage())
		// 调度控制
		r.POST("/start", api.calcHandler.RuleStart())
		r.POST("/stop", api.calcHandler.RuleStop())
		r.POST("/refresh", api.calcHandler.RuleRefresh())
		// 手动试算
		r.POST("/mock", api.calcHandler.MockCalc())
		// 调度积压观测
		r.GET("/pending", api.calcHandler.QueuePending())
	}

	p := base.Group("/calc/param")
	{
		p.GET("/list", api.calcHandler.ParamList())
		p.POST("/save", api.calcHandler.ParamSave())
		p.POST("/delete", api.calcHandler.ParamDelete())
	}
}
