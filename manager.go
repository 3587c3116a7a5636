package models

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// manager is the concrete implementation of the Manager interface.
type manager struct {
	// cfg holds the module configuration with defaults applied.
	cfg Config

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// storage handles the registry file and local filesystem operations.
	storage storageInterface

	// client downloads model archives.
	client *archiveClient

	// packer writes extracted models to artifacts.
	packer Packer

	// updateMu serializes load-modify-save cycles on the registry.
	updateMu sync.Mutex
}

// List returns every registry entry in file order.
func (m *manager) List(ctx context.Context) ([]ModelEntry, error) {
	reg, err := m.storage.loadRegistry()
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	return reg.entries(), nil
}

// Get returns the registry entry for id.
func (m *manager) Get(ctx context.Context, id string) (ModelEntry, error) {
	reg, err := m.storage.loadRegistry()
	if err != nil {
		return ModelEntry{}, fmt.Errorf("loading registry: %w", err)
	}

	entry, ok := reg.entry(id)
	if !ok {
		return ModelEntry{}, fmt.Errorf("%s: %w", id, ErrModelNotFound)
	}
	return entry, nil
}

// Fetch downloads and extracts the archive of one model and records model_path.
func (m *manager) Fetch(ctx context.Context, id string, opts ...PrepareOption) error {
	cfg := newPrepareConfig(opts...)

	entry, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.DownloadURL == "" {
		return fmt.Errorf("%s: no %s: %w", id, KeyDownloadURL, ErrDownload)
	}

	archivePath := filepath.Join(m.cfg.ModelsDir, id+".zip")

	cfg.report(Progress{ID: id, Phase: PhaseDownload})
	m.debug("downloading archive", "id", id, "url", entry.DownloadURL, "path", archivePath)

	err = m.client.fetchToFile(ctx, entry.DownloadURL, archivePath, entry.ArchiveSHA256, func(completed, total int64) {
		cfg.report(Progress{
			ID:             id,
			Phase:          PhaseDownload,
			BytesTotal:     total,
			BytesCompleted: completed,
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	cfg.report(Progress{ID: id, Phase: PhaseExtract})
	root, err := extractArchive(ctx, archivePath, m.cfg.ModelsDir, func(name string) {
		cfg.report(Progress{ID: id, Phase: PhaseExtract, CurrentFile: name})
	})
	if err != nil {
		m.removeArchive(id, archivePath)
		if errors.Is(err, ErrArchiveFormat) {
			if m.logger != nil {
				m.logger.Warn("archive has no root folder, skipping model", "id", id, "error", err)
			}
			cfg.report(Progress{ID: id, Phase: PhaseSkipped, Message: err.Error()})
		}
		return fmt.Errorf("%s: %w", id, err)
	}

	modelPath := filepath.Join(m.cfg.ModelsDir, root)
	m.removeArchive(id, archivePath)

	if err := m.update(id, KeyModelPath, modelPath); err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Info("model extracted", "id", id, "path", modelPath)
	}
	cfg.report(Progress{ID: id, Phase: PhaseDone, Message: modelPath})
	return nil
}

// FetchAll fetches every model in the registry.
func (m *manager) FetchAll(ctx context.Context, opts ...PrepareOption) error {
	entries, err := m.List(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		err := m.Fetch(ctx, entry.ID, opts...)
		switch {
		case err == nil:
		case errors.Is(err, ErrArchiveFormat):
			// Already logged as a skip.
		default:
			if m.logger != nil {
				m.logger.Error("fetch failed", "id", entry.ID, "error", err)
			}
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Pack writes the extracted model of one entry to a single artifact.
func (m *manager) Pack(ctx context.Context, id string, opts ...PrepareOption) error {
	cfg := newPrepareConfig(opts...)

	entry, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.ModelPath == "" || !m.storage.isDir(entry.ModelPath) {
		return fmt.Errorf("%s: %q: %w", id, entry.ModelPath, ErrNotExtracted)
	}

	if err := m.storage.ensureDir(m.cfg.ArtifactsDir); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	artifactPath := filepath.Join(m.cfg.ArtifactsDir, filepath.Base(entry.ModelPath)+ArtifactExt)

	cfg.report(Progress{ID: id, Phase: PhasePack, CurrentFile: entry.ModelPath})
	m.debug("packing model", "id", id, "model_path", entry.ModelPath, "artifact", artifactPath)

	if err := m.packer.Pack(ctx, entry.ModelPath, artifactPath); err != nil {
		m.storage.removeAll(artifactPath)
		return fmt.Errorf("%w: %s: %w", ErrPack, id, err)
	}

	if err := m.storage.removeAll(entry.ModelPath); err != nil && m.logger != nil {
		m.logger.Warn("failed to remove extracted model", "id", id, "path", entry.ModelPath, "error", err)
	}

	if err := m.update(id, KeyArtifactPath, artifactPath); err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Info("model packed", "id", id, "artifact", artifactPath)
	}
	cfg.report(Progress{ID: id, Phase: PhaseDone, Message: artifactPath})
	return nil
}

// PackAll packs every entry whose model_path is an existing directory.
func (m *manager) PackAll(ctx context.Context, opts ...PrepareOption) error {
	entries, err := m.List(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if entry.ModelPath == "" || !m.storage.isDir(entry.ModelPath) {
			m.debug("nothing to pack", "id", entry.ID, "model_path", entry.ModelPath)
			continue
		}

		if err := m.Pack(ctx, entry.ID, opts...); err != nil {
			if m.logger != nil {
				m.logger.Error("pack failed", "id", entry.ID, "error", err)
			}
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Prepare runs FetchAll and then PackAll.
func (m *manager) Prepare(ctx context.Context, opts ...PrepareOption) error {
	fetchErr := m.FetchAll(ctx, opts...)
	if err := ctx.Err(); err != nil {
		return errors.Join(fetchErr, err)
	}
	return errors.Join(fetchErr, m.PackAll(ctx, opts...))
}

// update sets key=value in the section for id and saves the registry.
func (m *manager) update(id, key, value string) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	err := m.storage.updateRegistry(func(reg *registry) error {
		return reg.set(id, key, value)
	})
	if err != nil {
		return fmt.Errorf("updating registry: %w", err)
	}
	return nil
}

// removeArchive deletes a downloaded archive. Failure is only logged.
func (m *manager) removeArchive(id, path string) {
	if err := m.storage.removeAll(path); err != nil && m.logger != nil {
		m.logger.Warn("failed to remove archive", "id", id, "path", path, "error", err)
	}
}

func (m *manager) debug(msg string, keysAndValues ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, keysAndValues...)
	}
}
