package testutils

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

// TestHelper bundles a captured logger for tests. Output is suppressed;
// every entry is recorded by the hook so tests assert on what was logged
// instead of scraping a buffer.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logrustest.Hook
}

// NewTestHelper creates a helper with a trace-level captured logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.TraceLevel)
	logger.SetOutput(io.Discard)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   logrustest.NewLocal(logger),
	}
}

// Messages returns all captured log messages, oldest first.
func (h *TestHelper) Messages() []string {
	entries := h.Hook.AllEntries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

// CountMessagesContaining returns how many captured messages contain
// substr.
func (h *TestHelper) CountMessagesContaining(substr string) int {
	n := 0
	for _, m := range h.Messages() {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

// ResetLog discards entries captured so far.
func (h *TestHelper) ResetLog() {
	h.Hook.Reset()
}
