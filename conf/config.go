package conf

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

// 配置加载（数据库、缓存、消息队列等）

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
}

// InfluxConfig 时序数据库配置
type InfluxConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	Org   string `yaml:"org"`
}

// MongoConfig 文档数据库配置，计算结果按规则分集合存储
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// CalcConfig 计算规则引擎配置
type CalcConfig struct {
	// 触发消息主题与消费组
	Topic string `yaml:"topic"`
	Group string `yaml:"group"`
	// 延迟队列轮询间隔
	DispatchInterval time.Duration `yaml:"dispatch-interval"`
	// 单次计算的超时时间（包含查询、脚本执行、落库）
	FiringTimeout time.Duration `yaml:"firing-timeout"`
	// 计算失败后重新入队的退避时间
	RetryBackoff time.Duration `yaml:"retry-backoff"`
	// 单条规则的执行租约，防止重复投递导致并发执行
	LockTTL time.Duration `yaml:"lock-ttl"`
	// 结果集合的基础名，实际集合为 <base>_<ruleId>
	ResultCollection string `yaml:"result-collection"`
}

// yaml里的时长写成"1s"/"2m"这类可读形式，逐个解析
func (c *CalcConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Topic            string `yaml:"topic"`
		Group            string `yaml:"group"`
		DispatchInterval string `yaml:"dispatch-interval"`
		FiringTimeout    string `yaml:"firing-timeout"`
		RetryBackoff     string `yaml:"retry-backoff"`
		LockTTL          string `yaml:"lock-ttl"`
		ResultCollection string `yaml:"result-collection"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Topic = raw.Topic
	c.Group = raw.Group
	c.ResultCollection = raw.ResultCollection

	for _, d := range []struct {
		src string
		dst *time.Duration
	}{
		{raw.DispatchInterval, &c.DispatchInterval},
		{raw.FiringTimeout, &c.FiringTimeout},
		{raw.RetryBackoff, &c.RetryBackoff},
		{raw.LockTTL, &c.LockTTL},
	} {
		if d.src == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d.src, err)
		}
		*d.dst = parsed
	}
	return nil
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	Language     string `yaml:"language"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Db     `yaml:"database"`
	Log    LogConfig    `yaml:"log"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Influx InfluxConfig `yaml:"influx"`
	Mongo  MongoConfig  `yaml:"mongo"`
	Calc   CalcConfig   `yaml:"calc"`
}

var AppConfig Config

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	if err := yaml.Unmarshal(data, &AppConfig); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	applyCalcDefaults(&AppConfig.Calc)
	return nil
}

func applyCalcDefaults(c *CalcConfig) {
	if c.Topic == "" {
		c.Topic = "calc_rule_trigger"
	}
	if c.Group == "" {
		c.Group = "calc_rule_worker"
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = time.Second
	}
	if c.FiringTimeout <= 0 {
		c.FiringTimeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.ResultCollection == "" {
		c.ResultCollection = "calc_result"
	}
}
