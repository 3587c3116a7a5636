package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// verifyHash compares the hex digest of h against expectedHash.
// Returns nil if the hash matches, ErrHashMismatch if verification fails.
// The comparison ignores case and surrounding whitespace.
func verifyHash(h hash.Hash, expectedHash string) error {
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != strings.ToLower(strings.TrimSpace(expectedHash)) {
		return fmt.Errorf("%w: got %s, want %s", ErrHashMismatch, actual, expectedHash)
	}
	return nil
}

// fetchToFile downloads link into path, creating parent directories.
// When expectedHash is non-empty the archive content is verified against it.
// On any failure the partially written file is removed.
func (c *archiveClient) fetchToFile(ctx context.Context, link, path, expectedHash string, onProgress func(completed, total int64)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}

	h := sha256.New()
	err = c.download(ctx, link, io.MultiWriter(out, h), onProgress)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing archive file: %w", cerr)
	}
	if err == nil && expectedHash != "" {
		err = verifyHash(h, expectedHash)
	}

	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
