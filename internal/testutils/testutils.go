// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObservedLogger returns a logger whose entries at or above level are
// captured for assertions
func NewObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// WaitClosed fails the test if ch is not closed within timeout
func WaitClosed(t testing.TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(timeout):
		require.FailNow(t, "channel was not closed in time", msgAndArgs...)
	}
}

// MessagesAt returns the messages of the captured entries at level
func MessagesAt(logs *observer.ObservedLogs, level zapcore.Level) []string {
	var messages []string
	for _, entry := range logs.All() {
		if entry.Level == level {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}
