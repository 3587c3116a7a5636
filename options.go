package models

import (
	"context"
	"net/http"
)

// PrepareOption configures a fetch or pack operation.
type PrepareOption func(*prepareConfig)

// prepareConfig holds configuration for a fetch or pack operation.
type prepareConfig struct {
	// progressFn is called with progress updates.
	progressFn func(Progress)
}

// newPrepareConfig returns a prepareConfig with default values.
func newPrepareConfig(opts ...PrepareOption) *prepareConfig {
	cfg := &prepareConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// report sends p to the progress callback if one is set.
func (c *prepareConfig) report(p Progress) {
	if c.progressFn != nil {
		c.progressFn(p)
	}
}

// WithProgress sets a callback for progress updates.
// The callback is invoked synchronously from the calling goroutine.
func WithProgress(fn func(Progress)) PrepareOption {
	return func(c *prepareConfig) {
		c.progressFn = fn
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	httpClient HTTPClient
	logger     Logger // nil disables logging
	packer     Packer
}

func newManagerConfig() *managerConfig {
	return &managerConfig{
		httpClient: http.DefaultClient,
		packer:     artifactPacker{},
	}
}

// WithHTTPClient replaces http.DefaultClient for archive and confirmation
// page requests.
func WithHTTPClient(client HTTPClient) ManagerOption {
	return func(c *managerConfig) {
		c.httpClient = client
	}
}

// WithLogger routes fetch and pack diagnostics to logger.
func WithLogger(logger Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithPacker replaces the artifact packer.
// If not set, the inference package's pretrained loader is used.
func WithPacker(p Packer) ManagerOption {
	return func(c *managerConfig) {
		c.packer = p
	}
}

// HTTPClient sends archive requests. *http.Client implements it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Packer loads a pretrained model directory and writes it as one artifact.
type Packer interface {
	// Pack writes the tokenizer and model found in modelDir to artifactPath.
	Pack(ctx context.Context, modelDir, artifactPath string) error
}

// PackerFunc adapts a function to the Packer interface.
type PackerFunc func(ctx context.Context, modelDir, artifactPath string) error

// Pack calls f(ctx, modelDir, artifactPath).
func (f PackerFunc) Pack(ctx context.Context, modelDir, artifactPath string) error {
	return f(ctx, modelDir, artifactPath)
}

// Logger takes a message and alternating key/value pairs, the calling
// convention of *slog.Logger and zap's SugaredLogger "w" methods.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
