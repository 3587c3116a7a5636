package models

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// macOSMetadataDir is added by the Finder's "Compress" action and is never model content.
const macOSMetadataDir = "__MACOSX"

// entryName returns the slash-separated, cleaned name of a zip entry.
func entryName(f *zip.File) string {
	name := strings.ReplaceAll(f.Name, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// archiveRoot returns the single top-level directory shared by every entry.
// Returns ErrArchiveFormat if the archive is empty, holds files at the top
// level, or spreads its content over more than one top-level directory.
func archiveRoot(files []*zip.File) (string, error) {
	root := ""
	for _, f := range files {
		name := entryName(f)
		if name == "" {
			continue
		}

		first, _, nested := strings.Cut(name, "/")
		if first == macOSMetadataDir {
			continue
		}
		if !nested && !f.FileInfo().IsDir() {
			return "", fmt.Errorf("%w: top-level file %q", ErrArchiveFormat, name)
		}

		switch {
		case root == "":
			root = first
		case root != first:
			return "", fmt.Errorf("%w: multiple top-level entries %q and %q", ErrArchiveFormat, root, first)
		}
	}

	if root == "" {
		return "", fmt.Errorf("%w: archive is empty", ErrArchiveFormat)
	}
	return root, nil
}

// extractArchive unpacks the zip at archivePath into destDir and returns the
// name of its root folder. The root is detected before anything is written,
// so an archive without one leaves destDir untouched.
// onFile, if non-nil, is called with each entry name as it is written.
func extractArchive(ctx context.Context, archivePath, destDir string, onFile func(name string)) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return "", fmt.Errorf("%w: opening %s: %v", ErrArchiveFormat, archivePath, err)
	}
	// Insecure names are cleaned by entryName and checked against destDir below.
	defer zr.Close()

	root, err := archiveRoot(zr.File)
	if err != nil {
		return "", err
	}

	base, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", destDir, err)
	}

	for _, f := range zr.File {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		name := entryName(f)
		if first, _, _ := strings.Cut(name, "/"); name == "" || first == macOSMetadataDir {
			continue
		}

		target := filepath.Join(base, filepath.FromSlash(name))
		if !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return "", fmt.Errorf("archive entry %q escapes %s", f.Name, destDir)
		}

		if onFile != nil {
			onFile(name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return "", fmt.Errorf("creating directory %s: %w", name, err)
			}
			continue
		}

		if err := writeEntry(f, target); err != nil {
			return "", err
		}
	}

	return root, nil
}

// writeEntry copies one zip file entry to target.
func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", f.Name, err)
	}

	written, err := io.Copy(out, rc)
	out.Close()
	if err != nil {
		return fmt.Errorf("writing file %s: %w", f.Name, err)
	}

	if written != int64(f.UncompressedSize64) {
		return fmt.Errorf("file %s: wrote %d bytes, expected %d", f.Name, written, f.UncompressedSize64)
	}
	return nil
}
