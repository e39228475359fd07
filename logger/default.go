package logger

import "sync/atomic"

var defLogger atomic.Pointer[Logger]

func init() {
	SetDefault(NewSlog(InfoLevel, false))
}

// SetDefault replaces the process-wide logger returned by GetLogger.
// Components built afterwards without an explicit logger pick it up.
// A nil l is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&l)
}

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	return *defLogger.Load()
}
