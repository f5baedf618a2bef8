package api

import (
	"context"
	"iotflow/conf"
	"iotflow/internal/dao"
	"iotflow/internal/handler/calc"
	"iotflow/internal/router"
	"iotflow/internal/service"
	"iotflow/pkg/cache"
	"iotflow/pkg/kafka"
	"iotflow/pkg/mongodb"
	"iotflow/pkg/tsdb"

	"gorm.io/gorm"
)

var (
	workerCancel context.CancelFunc
	producer     kafka.ProducerService
	consumer     kafka.ConsumerService
)

// InitRouter 组装依赖并启动后台任务：
// 延迟队列分发器和触发消息消费者跟随进程存活，shutdown时通过StopWorkers退出
func InitRouter(db *gorm.DB) Router {
	appCfg := conf.AppConfig

	calcDao := dao.NewCalcDao(db)
	cacheDao := dao.NewCalcCacheDao(cache.GetRedisClient())
	reader := tsdb.NewReader(appCfg.Influx)
	docs := mongodb.NewDocWriter(mongodb.GetMongoClient(), appCfg.Mongo.Database)

	calcService := service.NewCalcService(calcDao, cacheDao, reader, appCfg.Calc)
	runner := service.NewCalcRunner(cacheDao, reader, docs, appCfg.Calc)

	producer = kafka.NewKafkaProducer(appCfg.Kafka.Broker, appCfg.Calc.Topic)
	consumer = kafka.NewKafkaConsumer(appCfg.Kafka.Broker)

	dispatcher := service.NewCalcDispatcher(cacheDao, producer, appCfg.Calc.DispatchInterval)
	calcConsumer := service.NewCalcConsumer(consumer, runner, appCfg.Calc)

	ctx, cancel := context.WithCancel(context.Background())
	workerCancel = cancel
	go dispatcher.Run(ctx)
	go calcConsumer.Run(ctx)

	calcHandler := calc.NewCalcHandler(calcService)
	return router.NewApiRouter(calcHandler)
}

// StopWorkers 停掉后台任务并关闭消息队列连接
func StopWorkers() {
	if workerCancel != nil {
		workerCancel()
	}
	if producer != nil {
		producer.Close()
	}
	if consumer != nil {
		consumer.Close()
	}
}
