package ecode

// 业务错误码，0表示成功
const (
	Success = 0
	Unknown = 10001
	// 请求参数校验失败
	ValidateErr = 10002
	// 资源不存在
	NotFoundErr = 10003

	// 计算规则相关错误码

	// 缓存序列化/反序列化失败
	SerializationErr = 20001
	// cron表达式无法算出下一次执行时间
	SchedulingErr = 20002
	// 存储层（mysql/redis/influx/mongo）读写失败
	StoreErr = 20003
	// 脚本执行失败或返回了非法结果
	ScriptErr = 20004
)

var messages = map[int]string{
	Success:          "成功",
	Unknown:          "未知错误",
	ValidateErr:      "参数校验失败",
	NotFoundErr:      "资源不存在",
	SerializationErr: "序列化失败",
	SchedulingErr:    "调度时间计算失败",
	StoreErr:         "存储访问失败",
	ScriptErr:        "脚本执行失败",
}

// Message 返回错误码对应的默认描述
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[Unknown]
}
