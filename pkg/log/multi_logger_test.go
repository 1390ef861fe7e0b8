package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	events []Event
}

func (m *mockLogger) Log(event Event) {
	m.events = append(m.events, event)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	mocks := []*mockLogger{{}, {}, {}}
	loggers := make([]Logger, len(mocks))
	for i, m := range mocks {
		loggers[i] = m
	}
	multi := NewMultiLogger(loggers...)

	event := Event{Timestamp: time.Now(), ConnectionID: "conn-123", Layer: LayerTransport, Category: CategoryFrame}
	multi.Log(event)

	for _, m := range mocks {
		require.Len(t, m.events, 1)
		assert.Equal(t, "conn-123", m.events[0].ConnectionID)
	}
}

func TestMultiLoggerEmptyListDoesNotPanic(t *testing.T) {
	multi := NewMultiLogger()
	multi.Log(Event{Timestamp: time.Now()})
}

func TestNoopLoggerSatisfiesInterface(t *testing.T) {
	var _ Logger = NoopLogger{}
	var logger NoopLogger
	logger.Log(Event{})
}
