package consts

import "time"

const (
	// RequestId 请求id名称
	RequestId = "request_id"

	// CalcCacheKey 规则缓存hash，field为规则id
	CalcCacheKey = "calc_cache"
	// CalcQueueKey 延迟队列sorted set，member为规则id，score为下次执行时间戳
	CalcQueueKey = "calc_queue"
	// CalcQueueParamPrefix 锚点key前缀，value为上一个计算窗口的右边界时间戳
	CalcQueueParamPrefix = "calc_queue_param:"
	// CalcLockPrefix 单条规则执行租约的key前缀
	CalcLockPrefix = "calc_lock:"

	// ReduceRaw 取原始序列的归约方式哨兵值，其余取值为聚合函数名（mean/max/min等）
	ReduceRaw = "原始"

	// 默认redis过期时间
	RedisExrDefault = time.Hour * 24 * 5
)

const (
	DateLayout   = "2006-01-02"
	TimeLayout   = "2006-01-02 15:04:05"
	TimeLayoutMs = "2006-01-02 15:04:05.000"
)
