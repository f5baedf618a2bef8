package main

import (
	"fmt"
	api "iotflow/cmd/iotflow"
	"iotflow/conf"
	"iotflow/internal/middleware"
	"iotflow/pkg/cache"
	"iotflow/pkg/db"
	"iotflow/pkg/logger"
	"iotflow/pkg/mongodb"
	"iotflow/pkg/tsdb"
	"log"
	"os"
)

// 计算规则引擎服务入口

func main() {

	// 加载配置文件
	err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.InitLogger(&appCfg.Log, appCfg.AppName)

	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUser != "" && dbPass != "" && dbHost != "" {
		appCfg.Db.Username = dbUser
		appCfg.Db.Password = dbPass
		appCfg.Db.Host = dbHost
		appCfg.Db.Port = dbPort
		appCfg.Db.DbName = dbName
	}

	// 初始化数据库
	datasource := db.Init(appCfg.Db)

	redisHost := os.Getenv("REDIS_HOST")
	redisPort := os.Getenv("REDIS_PORT")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	if redisHost != "" && redisPort != "" {
		appCfg.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}
	if redisPassword != "" {
		appCfg.Redis.Password = redisPassword
	}

	// 初始化redis缓存
	cache.InitRedis(appCfg.Redis)
	// 初始化时序库和文档库
	tsdb.InitInflux(appCfg.Influx)
	mongodb.InitMongo(appCfg.Mongo)

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srv.RegisterOnShutdown(func() {
		api.StopWorkers()

		if datasource != nil {
			// 关闭主库链接
			if m, err := datasource.DB(); err == nil {
				_ = m.Close()
			}
		}

		cache.CloseRedis()
		tsdb.CloseInflux()
		mongodb.CloseMongo()
		logger.Sync()
	})
	srvRouter := api.InitRouter(datasource)

	srv.Run(middleware.NewMiddleware(), srvRouter)
}
