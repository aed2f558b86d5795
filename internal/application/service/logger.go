package service

// Logger is the key-value logging surface services depend on. The
// container adapts zap to it.
type Logger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}
