package js

import (
	"strings"
	"testing"
	"time"
)

func TestRunMainPassthrough(t *testing.T) {
	// 透传脚本：入参JSON经parse/stringify往返后原样带回
	out, err := RunMain("function main(data) { return data; }", `{"temperature":23.5}`, time.Second)
	if err != nil {
		t.Fatalf("RunMain failed: %v", err)
	}
	if out != `{"temperature":23.5}` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunMainTransform(t *testing.T) {
	script := `function main(data) {
		var sum = 0, count = 0;
		for (var key in data.samples) { sum += data.samples[key]; count++; }
		return { avg: sum / count };
	}`
	payload := `{"samples":{"a":1,"b":2,"c":3}}`

	out, err := RunMain(script, payload, time.Second)
	if err != nil {
		t.Fatalf("RunMain failed: %v", err)
	}
	if out != `{"avg":2}` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunMainMissingMain(t *testing.T) {
	_, err := RunMain("var x = 1;", `{}`, time.Second)
	if err == nil {
		t.Fatal("expected error when main is absent")
	}
	if !strings.Contains(err.Error(), "main is not a function") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunMainSyntaxError(t *testing.T) {
	if _, err := RunMain("function main( {", `{}`, time.Second); err == nil {
		t.Fatal("expected error for invalid script")
	}
}

func TestRunMainThrowsBecomeErrors(t *testing.T) {
	_, err := RunMain(`function main(data) { throw new Error("boom"); }`, `{}`, time.Second)
	if err == nil {
		t.Fatal("expected error from throwing script")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunMainTimeout(t *testing.T) {
	start := time.Now()
	_, err := RunMain("function main(data) { while (true) {} }", `{}`, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("interrupt took too long: %v", elapsed)
	}
}

func TestRunMainIsolation(t *testing.T) {
	// vm不复用，上一次执行留下的全局变量不可见
	if _, err := RunMain("var leaked = 42; function main(data) { return data; }", `{}`, time.Second); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	out, err := RunMain("function main(data) { return typeof leaked; }", `{}`, time.Second)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if out != `"undefined"` {
		t.Fatalf("state leaked across runs: %s", out)
	}
}
