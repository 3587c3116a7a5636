package models

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultLockTimeout bounds the wait for the registry lock file.
const DefaultLockTimeout = 30 * time.Second

// registry is the in-memory form of the INI registry file.
// Section order is preserved, as are keys this package does not know about.
type registry struct {
	file *ini.File
}

// newRegistry returns an empty registry.
func newRegistry() *registry {
	return &registry{file: ini.Empty()}
}

// sections returns model section names in file order, skipping the DEFAULT section.
func (r *registry) sections() []string {
	var names []string
	for _, sec := range r.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		names = append(names, sec.Name())
	}
	return names
}

// entries returns every model entry in file order.
func (r *registry) entries() []ModelEntry {
	names := r.sections()
	entries := make([]ModelEntry, 0, len(names))
	for _, name := range names {
		entry, _ := r.entry(name)
		entries = append(entries, entry)
	}
	return entries
}

// entry returns the entry for id, and false if no such section exists.
func (r *registry) entry(id string) (ModelEntry, bool) {
	sec, err := r.file.GetSection(id)
	if err != nil || id == ini.DefaultSection {
		return ModelEntry{}, false
	}
	return ModelEntry{
		ID:            id,
		DisplayName:   sec.Key(KeyDisplayName).String(),
		Description:   sec.Key(KeyDescription).String(),
		DownloadURL:   sec.Key(KeyDownloadURL).String(),
		ModelPath:     sec.Key(KeyModelPath).String(),
		ArtifactPath:  sec.Key(KeyArtifactPath).String(),
		ArchiveSHA256: sec.Key(KeyArchiveSHA256).String(),
	}, true
}

// set writes key=value in the section for id.
// Returns ErrModelNotFound if the section does not exist.
func (r *registry) set(id, key, value string) error {
	sec, err := r.file.GetSection(id)
	if err != nil || id == ini.DefaultSection {
		return fmt.Errorf("%s: %w", id, ErrModelNotFound)
	}
	sec.Key(key).SetValue(value)
	return nil
}

// put creates or replaces the section for e.ID with e's non-empty fields.
func (r *registry) put(e ModelEntry) {
	sec := r.file.Section(e.ID)
	fields := []struct{ key, value string }{
		{KeyDownloadURL, e.DownloadURL},
		{KeyDisplayName, e.DisplayName},
		{KeyDescription, e.Description},
		{KeyModelPath, e.ModelPath},
		{KeyArtifactPath, e.ArtifactPath},
		{KeyArchiveSHA256, e.ArchiveSHA256},
	}
	for _, f := range fields {
		if f.value != "" {
			sec.Key(f.key).SetValue(f.value)
		}
	}
}

// decodeRegistry parses INI data into a registry.
func decodeRegistry(data []byte) (*registry, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &registry{file: file}, nil
}

// encode renders the registry in INI format.
func (r *registry) encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := r.file.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// storageInterface defines operations for registry and filesystem management.
// Implemented by *storage for production and mock storages for tests.
type storageInterface interface {
	// loadRegistry reads and parses the registry file.
	loadRegistry() (*registry, error)

	// saveRegistry atomically writes the registry file.
	saveRegistry(reg *registry) error

	// updateRegistry applies fn to a freshly loaded registry and saves it
	// without letting another writer in between.
	updateRegistry(fn func(*registry) error) error

	// ensureDir is os.MkdirAll with a wrapped error.
	ensureDir(path string) error

	// removeAll removes a file or directory tree.
	removeAll(path string) error

	// isDir reports whether path is an existing directory.
	isDir(path string) bool
}

// storage is the on-disk storageInterface.
type storage struct {
	path        string
	lockTimeout time.Duration

	// registryMu orders registry reads and writes within the process; the
	// file lock covers other processes.
	registryMu sync.RWMutex
}

var _ storageInterface = (*storage)(nil)

// newStorage creates a storage for the registry file at path.
func newStorage(path string) *storage {
	return &storage{path: path, lockTimeout: DefaultLockTimeout}
}

// loadRegistry reads and parses the registry file.
// Returns ErrInvalidConfig if the file is missing or malformed.
func (s *storage) loadRegistry() (*registry, error) {
	s.registryMu.RLock()
	defer s.registryMu.RUnlock()
	return s.readRegistry()
}

func (s *storage) readRegistry() (*registry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	reg, err := decodeRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return reg, nil
}

// saveRegistry replaces the registry file while holding path+".lock".
func (s *storage) saveRegistry(reg *registry) error {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	return s.withFileLock(func() error {
		return s.writeRegistry(reg)
	})
}

// updateRegistry reads the registry, applies fn and writes the result, all
// under path+".lock", so concurrent writers in other processes cannot
// interleave between the read and the write. Nothing is written when fn
// fails.
func (s *storage) updateRegistry(fn func(*registry) error) error {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	return s.withFileLock(func() error {
		reg, err := s.readRegistry()
		if err != nil {
			return err
		}
		if err := fn(reg); err != nil {
			return err
		}
		return s.writeRegistry(reg)
	})
}

func (s *storage) withFileLock(fn func() error) error {
	lock, err := newFileLock(s.path+".lock", s.lockTimeout)
	if err != nil {
		return fmt.Errorf("%w: failed to create lock: %v", ErrConfigWrite, err)
	}
	defer lock.Unlock()

	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: failed to acquire lock: %v", ErrConfigWrite, err)
	}
	return fn()
}

func (s *storage) writeRegistry(reg *registry) error {
	data, err := reg.encode()
	if err != nil {
		return fmt.Errorf("%w: failed to encode registry: %v", ErrConfigWrite, err)
	}
	return atomicWrite(s.path, data)
}

// atomicWrite writes data to path using write-then-rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrConfigWrite, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write temp file: %v", ErrConfigWrite, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: failed to rename temp file: %v", ErrConfigWrite, err)
	}

	return nil
}

func (s *storage) ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// removeAll removes a file or directory tree.
func (s *storage) removeAll(path string) error {
	return os.RemoveAll(path)
}

// isDir reports whether path is an existing directory.
func (s *storage) isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CopyRegistry writes the registry at src to dst, creating dst's directory.
// Used on first run to seed the working registry from the source registry.
func CopyRegistry(src, dst string) error {
	reg, err := newStorage(src).loadRegistry()
	if err != nil {
		return err
	}
	return newStorage(dst).saveRegistry(reg)
}
