package logger

import (
	"slices"
	"sync"

	"github.com/stretchr/testify/mock"
)

// Entry is one message captured by MockLogger.
type Entry struct {
	Level         Level
	Msg           string
	KeysAndValues []any
}

// MockLogger is a testify mock implementing Logger. Besides the usual
// expectations it keeps every message it receives, so tests of long running
// workers can poll for a lifecycle event instead of asserting call order.
type MockLogger struct {
	mock.Mock

	mu      sync.Mutex
	entries []Entry
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Permissive accepts any log call. With returns the mock itself, so child
// loggers handed to workers record into the same entries.
func (m *MockLogger) Permissive() *MockLogger {
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Return().Maybe()
	}
	m.On("With", mock.Anything).Return(m).Maybe()
	m.On("SetLevel", mock.Anything).Return().Maybe()
	m.On("Level").Return(DebugLevel).Maybe()

	return m
}

// Entries returns a copy of the captured messages in arrival order.
func (m *MockLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.entries)
}

// Logged reports whether msg was logged at level.
func (m *MockLogger) Logged(level Level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.ContainsFunc(m.entries, func(e Entry) bool {
		return e.Level == level && e.Msg == msg
	})
}

func (m *MockLogger) record(level Level, method string, msg string, kv []any) {
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Level: level, Msg: msg, KeysAndValues: kv})
	m.mu.Unlock()

	m.MethodCalled(method, msg, kv)
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.record(DebugLevel, "Debug", msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.record(InfoLevel, "Info", msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.record(WarnLevel, "Warn", msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.record(ErrorLevel, "Error", msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.record(FatalLevel, "Fatal", msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	return m.Called().Get(0).(Level) //nolint:forcetypeassert
}

func (m *MockLogger) With(keyValues ...any) Logger {
	return m.Called(keyValues).Get(0).(Logger) //nolint:forcetypeassert
}
