package web

import (
	"io"
	"os"
)

// Logger is the interface for diagnostic logging.
// *slog.Logger satisfies this interface.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	logger    Logger
	accessLog io.Writer
	sample    string
	gc        func()
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(l Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = l
	}
}

// WithAccessLog sets where the request logger middleware writes.
// Default is os.Stdout.
func WithAccessLog(w io.Writer) ServerOption {
	return func(c *serverConfig) {
		c.accessLog = w
	}
}

// WithSample pre-fills the text area with text.
func WithSample(text string) ServerOption {
	return func(c *serverConfig) {
		c.sample = text
	}
}

// withGC replaces runtime.GC, for tests.
func withGC(gc func()) ServerOption {
	return func(c *serverConfig) {
		c.gc = gc
	}
}

// ReadSample returns the content of path, or an empty string if the file
// does not exist.
func ReadSample(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	return string(data), err
}
