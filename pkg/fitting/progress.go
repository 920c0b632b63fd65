package fitting

// Logger defines the structured logging methods the engine uses.
//
// Compatible with zap.SugaredLogger and other structured loggers.
// All methods accept key-value pairs for structured fields.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// nopLogger discards all log output. It is the default when no logger is
// configured so the library is quiet unless asked otherwise.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Monitor receives coarse-grained progress during a run. It is invoked only
// from the engine's single coordinator goroutine, never from workers, so
// implementations need no synchronization of their own.
type Monitor func(done, total, failed int)
