package errors

import (
	stderrors "errors"
	"fmt"

	"iotflow/pkg/errors/ecode"
)

// 携带业务错误码的error，handler层通过DecodeErr还原为响应码和提示信息

type codeError struct {
	code    int
	message string
	cause   error
}

func (e *codeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("code: %d, message: %s, cause: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("code: %d, message: %s", e.code, e.message)
}

func (e *codeError) Unwrap() error {
	return e.cause
}

// WithCode 根据错误码和描述创建error
func WithCode(code int, format string, args ...interface{}) error {
	return &codeError{
		code:    code,
		message: fmt.Sprintf(format, args...),
	}
}

// Wrap 在已有error上附加错误码和描述
func Wrap(err error, code int, message string) error {
	if err == nil {
		return nil
	}
	return &codeError{
		code:    code,
		message: message,
		cause:   err,
	}
}

// DecodeErr 解出错误码和提示信息，nil视为成功
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Message(ecode.Success)
	}
	var ce *codeError
	if stderrors.As(err, &ce) {
		return ce.code, ce.message
	}
	return ecode.Unknown, err.Error()
}

// IsCode 判断error链上是否带有指定错误码
func IsCode(err error, code int) bool {
	var ce *codeError
	if stderrors.As(err, &ce) {
		return ce.code == code
	}
	return false
}
