package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
)

type demoReq struct {
	Name string `binding:"required"`
}

func TestTranslateValidationError(t *testing.T) {
	LazyInitGinValidator("zh")

	err := binding.Validator.ValidateStruct(demoReq{})
	if err == nil {
		t.Fatal("expected validation error for empty required field")
	}
	msg := Translate(err)
	if !strings.Contains(msg, "必填") {
		t.Fatalf("expected zh translation, got %q", msg)
	}
}

// 非校验类错误（比如JSON语法错误）原样透传
func TestTranslatePassthroughForPlainErrors(t *testing.T) {
	LazyInitGinValidator("zh")

	if got := Translate(errors.New("unexpected EOF")); got != "unexpected EOF" {
		t.Fatalf("plain error must pass through, got %q", got)
	}
}
