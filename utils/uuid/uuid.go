package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// GenUUID 生成一个不带连字符的uuid
func GenUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenUUID16 生成16位短uuid，用于requestId这类内部追踪id
func GenUUID16() string {
	return GenUUID()[:16]
}
