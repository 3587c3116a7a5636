package models

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// zipEntry is a file or directory (trailing slash, empty body) for buildZip.
type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("zip Create(%q) error = %v", e.name, err)
		}
		if e.body != "" {
			if _, err := w.Write([]byte(e.body)); err != nil {
				t.Fatalf("zip Write(%q) error = %v", e.name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

func writeZip(t *testing.T, entries ...zipEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, buildZip(t, entries...), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestArchiveRoot(t *testing.T) {
	tests := []struct {
		name    string
		entries []zipEntry
		want    string
		wantErr bool
	}{
		{
			name: "directory entry first",
			entries: []zipEntry{
				{name: "bert_base/"},
				{name: "bert_base/config.json", body: "{}"},
			},
			want: "bert_base",
		},
		{
			name: "implicit root",
			entries: []zipEntry{
				{name: "roberta/config.json", body: "{}"},
				{name: "roberta/sub/vocab.txt", body: "a"},
			},
			want: "roberta",
		},
		{
			name: "finder metadata ignored",
			entries: []zipEntry{
				{name: "__MACOSX/bert/._config.json", body: "x"},
				{name: "bert/config.json", body: "{}"},
			},
			want: "bert",
		},
		{
			name: "top-level file",
			entries: []zipEntry{
				{name: "config.json", body: "{}"},
				{name: "model.safetensors", body: "w"},
			},
			wantErr: true,
		},
		{
			name: "two roots",
			entries: []zipEntry{
				{name: "a/config.json", body: "{}"},
				{name: "b/config.json", body: "{}"},
			},
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildZip(t, tt.entries...)
			zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				t.Fatalf("zip.NewReader() error = %v", err)
			}

			got, err := archiveRoot(zr.File)
			if tt.wantErr {
				if !errors.Is(err, ErrArchiveFormat) {
					t.Errorf("archiveRoot() error = %v, want ErrArchiveFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("archiveRoot() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("archiveRoot() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractArchive(t *testing.T) {
	archive := writeZip(t,
		zipEntry{name: "bert_base/"},
		zipEntry{name: "bert_base/config.json", body: `{"model_type":"bert"}`},
		zipEntry{name: "bert_base/vocab.txt", body: "[PAD]\n[UNK]\n"},
	)
	dest := t.TempDir()

	var seen []string
	root, err := extractArchive(context.Background(), archive, dest, func(name string) {
		seen = append(seen, name)
	})
	if err != nil {
		t.Fatalf("extractArchive() error = %v", err)
	}
	if root != "bert_base" {
		t.Errorf("root = %q, want bert_base", root)
	}
	if len(seen) != 3 {
		t.Errorf("onFile called %d times, want 3", len(seen))
	}

	got, err := os.ReadFile(filepath.Join(dest, "bert_base", "vocab.txt"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "[PAD]\n[UNK]\n" {
		t.Errorf("vocab.txt = %q", got)
	}
}

func TestExtractArchiveNoRootWritesNothing(t *testing.T) {
	archive := writeZip(t,
		zipEntry{name: "config.json", body: "{}"},
		zipEntry{name: "vocab.txt", body: "a"},
	)
	dest := t.TempDir()

	_, err := extractArchive(context.Background(), archive, dest, nil)
	if !errors.Is(err, ErrArchiveFormat) {
		t.Fatalf("extractArchive() error = %v, want ErrArchiveFormat", err)
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("destination has %d entries, want 0", len(entries))
	}
}

func TestExtractArchiveStaysInDestination(t *testing.T) {
	archive := writeZip(t,
		zipEntry{name: "model/config.json", body: "{}"},
		zipEntry{name: "model/../model/evil.txt", body: "x"},
	)
	parent := t.TempDir()
	dest := filepath.Join(parent, "models")

	if _, err := extractArchive(context.Background(), archive, dest, nil); err != nil {
		t.Fatalf("extractArchive() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "model", "evil.txt")); err != nil {
		t.Errorf("cleaned entry should land inside the root folder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
		t.Error("entry escaped the destination directory")
	}
}

func TestExtractArchiveCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := extractArchive(context.Background(), path, t.TempDir(), nil); !errors.Is(err, ErrArchiveFormat) {
		t.Errorf("extractArchive() error = %v, want ErrArchiveFormat", err)
	}
}

func TestExtractArchiveCancelled(t *testing.T) {
	archive := writeZip(t, zipEntry{name: "model/config.json", body: "{}"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := extractArchive(ctx, archive, t.TempDir(), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("extractArchive() error = %v, want context.Canceled", err)
	}
}
