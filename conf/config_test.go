package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
app_name: iotflow
listen: ":12190"

calc:
  topic: "calc_rule_trigger"
  dispatch-interval: 2s
  firing-timeout: 45s
  lock-ttl: 3m
`

func TestLoadConfigCalcDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	c := AppConfig.Calc
	if c.DispatchInterval != 2*time.Second {
		t.Errorf("dispatch-interval = %v", c.DispatchInterval)
	}
	if c.FiringTimeout != 45*time.Second {
		t.Errorf("firing-timeout = %v", c.FiringTimeout)
	}
	if c.LockTTL != 3*time.Minute {
		t.Errorf("lock-ttl = %v", c.LockTTL)
	}
	// 未配置项落默认值
	if c.RetryBackoff != time.Minute {
		t.Errorf("retry-backoff default = %v", c.RetryBackoff)
	}
	if c.Group != "calc_rule_worker" {
		t.Errorf("group default = %q", c.Group)
	}
	if c.ResultCollection != "calc_result" {
		t.Errorf("result-collection default = %q", c.ResultCollection)
	}
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("calc:\n  dispatch-interval: fast\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}
