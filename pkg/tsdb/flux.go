package tsdb

import (
	"fmt"
	"regexp"
	"time"
)

// Flux查询构造，窗口原始序列和单值聚合两种形态

var aggFnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WindowedQuery 构造窗口内原始序列查询，按时间升序返回全部点
func WindowedQuery(bucket, measurement, field string, start, end time.Time) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: %d, stop: %d)
  |> filter(fn: (r) => r._measurement == %q and r._field == %q)
  |> sort(columns: ["_time"])`,
		bucket, start.Unix(), end.Unix(), measurement, field)
}

// ReduceQuery 构造窗口内单值聚合查询，fn为influx聚合函数名（mean/max/min/sum等）
func ReduceQuery(bucket, measurement, field string, start, end time.Time, fn string) (string, error) {
	if !aggFnPattern.MatchString(fn) {
		return "", fmt.Errorf("invalid aggregate function: %q", fn)
	}
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: %d, stop: %d)
  |> filter(fn: (r) => r._measurement == %q and r._field == %q)
  |> %s()`,
		bucket, start.Unix(), end.Unix(), measurement, field, fn), nil
}
