package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTaskType is the task segment of generated session ids.
const DefaultTaskType = "sub-task"

// NewID returns "<subAgent>-<taskType>-<unixMillis>-<8 hex>".
func NewID(subAgent, taskType string, now time.Time) string {
	if taskType == "" {
		taskType = DefaultTaskType
	}
	return fmt.Sprintf("%s-%s-%d-%s", subAgent, taskType, now.UnixMilli(), randomHex(4))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("session: read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}
