package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func TestVerifyHash(t *testing.T) {
	data := []byte("hello world")
	expected := sha256Hex(data)

	tests := []struct {
		name     string
		expected string
		wantErr  bool
	}{
		{name: "match", expected: expected},
		{name: "uppercase match", expected: strings.ToUpper(expected)},
		{name: "padded match", expected: "  " + expected + "\n"},
		{name: "mismatch", expected: sha256Hex([]byte("other")), wantErr: true},
		{name: "garbage", expected: "not-a-hash", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sha256.New()
			h.Write(data)

			err := verifyHash(h, tt.expected)
			if tt.wantErr {
				if !errors.Is(err, ErrHashMismatch) {
					t.Errorf("verifyHash() error = %v, want ErrHashMismatch", err)
				}
				return
			}
			if err != nil {
				t.Errorf("verifyHash() error = %v", err)
			}
		})
	}
}

func TestFetchToFile(t *testing.T) {
	payload := []byte("PK archive bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(payload)
	}))
	defer server.Close()

	client := newArchiveClient(server.Client(), nil)

	t.Run("writes file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "models", "bert.zip")

		if err := client.fetchToFile(context.Background(), server.URL+"/bert.zip", path, sha256Hex(payload), nil); err != nil {
			t.Fatalf("fetchToFile() error = %v", err)
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(got) != string(payload) {
			t.Errorf("content = %q, want %q", got, payload)
		}
	})

	t.Run("hash mismatch removes file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bert.zip")

		err := client.fetchToFile(context.Background(), server.URL+"/bert.zip", path, sha256Hex([]byte("x")), nil)
		if !errors.Is(err, ErrHashMismatch) {
			t.Fatalf("fetchToFile() error = %v, want ErrHashMismatch", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("archive should be removed after hash mismatch")
		}
	})

	t.Run("download error removes file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bert.zip")

		err := client.fetchToFile(context.Background(), "::not a url", path, "", nil)
		if !errors.Is(err, ErrDownload) {
			t.Fatalf("fetchToFile() error = %v, want ErrDownload", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("archive should be removed after download error")
		}
	})
}
