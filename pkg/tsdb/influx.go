package tsdb

import (
	"context"
	"iotflow/conf"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/spf13/cast"
)

// Point 序列中的一个点
type Point struct {
	Time  time.Time
	Value float64
}

// Reader 时序查询接口，rule执行引擎通过它取数
type Reader interface {
	// QuerySeries 执行flux查询并取回整条序列
	QuerySeries(ctx context.Context, query string) ([]Point, error)
	// QueryScalar 执行聚合flux查询，取第一条记录的值；窗口内无数据时ok为false
	QueryScalar(ctx context.Context, query string) (value float64, ok bool, err error)
}

type influxReader struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
}

var globalClient influxdb2.Client

// InitInflux 初始化influx客户端
func InitInflux(cfg conf.InfluxConfig) {
	globalClient = influxdb2.NewClient(cfg.URL, cfg.Token)
}

func CloseInflux() {
	if globalClient != nil {
		globalClient.Close()
	}
}

func NewReader(cfg conf.InfluxConfig) Reader {
	if globalClient == nil {
		InitInflux(cfg)
	}
	return &influxReader{
		client:   globalClient,
		queryAPI: globalClient.QueryAPI(cfg.Org),
	}
}

func (r *influxReader) QuerySeries(ctx context.Context, query string) ([]Point, error) {
	result, err := r.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var points []Point
	for result.Next() {
		record := result.Record()
		// 只消费能转成数值的_value，bool/string等类型跳过
		v, castErr := cast.ToFloat64E(record.Value())
		if castErr != nil {
			continue
		}
		points = append(points, Point{Time: record.Time(), Value: v})
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return points, nil
}

func (r *influxReader) QueryScalar(ctx context.Context, query string) (float64, bool, error) {
	result, err := r.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, false, err
	}
	defer result.Close()

	for result.Next() {
		v, castErr := cast.ToFloat64E(result.Record().Value())
		if castErr != nil {
			continue
		}
		return v, true, nil
	}
	if result.Err() != nil {
		return 0, false, result.Err()
	}
	return 0, false, nil
}
