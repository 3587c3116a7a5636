package models

import (
	"context"
	"fmt"
)

// Manager provides programmatic access to model preparation.
// All methods are safe for concurrent use.
// For CLI integration, use NewCommand instead.
type Manager interface {
	// List returns every registry entry in file order.
	List(ctx context.Context) ([]ModelEntry, error)

	// Get returns the registry entry for id.
	// Returns ErrModelNotFound if the registry has no such section.
	Get(ctx context.Context, id string) (ModelEntry, error)

	// Fetch downloads and extracts the archive of one model and records
	// model_path. Returns ErrArchiveFormat, without recording anything, if
	// the archive has no single root folder.
	Fetch(ctx context.Context, id string, opts ...PrepareOption) error

	// FetchAll fetches every model in the registry. Failures are logged and
	// the remaining models are still fetched. Archives without a root folder
	// are skipped and not reported in the returned error.
	FetchAll(ctx context.Context, opts ...PrepareOption) error

	// Pack writes the extracted model of one entry to a single artifact,
	// removes the extracted directory and records model_tokenizer_pickle_path.
	// Returns ErrNotExtracted if model_path is not an existing directory.
	// On ErrPack the registry entry is left unmodified.
	Pack(ctx context.Context, id string, opts ...PrepareOption) error

	// PackAll packs every entry whose model_path is an existing directory.
	// Entries without one are skipped.
	PackAll(ctx context.Context, opts ...PrepareOption) error

	// Prepare runs FetchAll and then PackAll. The returned error joins the
	// failures of both phases.
	Prepare(ctx context.Context, opts ...PrepareOption) error
}

// Ensure manager implements Manager interface.
var _ Manager = (*manager)(nil)

// NewManager creates a new Manager for the registry in cfg.ConfigFile.
// Empty Config fields are replaced by their defaults. The models and
// artifacts directories are created if they don't exist.
func NewManager(cfg Config, opts ...ManagerOption) (Manager, error) {
	cfg = cfg.withDefaults()

	mcfg := newManagerConfig()
	for _, opt := range opts {
		opt(mcfg)
	}
	if mcfg.httpClient == nil {
		return nil, fmt.Errorf("models: HTTP client is required")
	}
	if mcfg.packer == nil {
		return nil, fmt.Errorf("models: packer is required")
	}

	storage := newStorage(cfg.ConfigFile)
	for _, dir := range []string{cfg.ModelsDir, cfg.ArtifactsDir} {
		if err := storage.ensureDir(dir); err != nil {
			return nil, err
		}
	}

	return &manager{
		cfg:     cfg,
		logger:  mcfg.logger,
		storage: storage,
		client:  newArchiveClient(mcfg.httpClient, mcfg.logger),
		packer:  mcfg.packer,
	}, nil
}
