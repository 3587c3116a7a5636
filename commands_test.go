package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand(Config{})

	t.Run("root command exists", func(t *testing.T) {
		if cmd == nil {
			t.Fatal("NewCommand returned nil")
		}
		if cmd.Use != "models" {
			t.Errorf("Use = %q, want %q", cmd.Use, "models")
		}
	})

	t.Run("has global flags with defaults", func(t *testing.T) {
		flags := map[string]string{
			FlagConfigFile:   DefaultConfigFile,
			FlagModelsDir:    DefaultModelsDir,
			FlagArtifactsDir: DefaultArtifactsDir,
			"quiet":          "false",
		}
		for name, def := range flags {
			f := cmd.PersistentFlags().Lookup(name)
			if f == nil {
				t.Errorf("missing global flag: %s", name)
				continue
			}
			if f.DefValue != def {
				t.Errorf("flag %s default = %q, want %q", name, f.DefValue, def)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		subcommands := []string{"fetch", "pack", "prepare", "list"}
		for _, name := range subcommands {
			found := false
			for _, sub := range cmd.Commands() {
				if sub.Name() == name {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("missing subcommand: %s", name)
			}
		}
	})
}

func runCommand(t *testing.T, env testEnv, opts []ManagerOption, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand(Config{}, opts...)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args,
		"--"+FlagConfigFile, env.cfg.ConfigFile,
		"--"+FlagModelsDir, env.cfg.ModelsDir,
		"--"+FlagArtifactsDir, env.cfg.ArtifactsDir,
	))

	err := cmd.Execute()
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	env := newTestEnv(t, sampleRegistry)

	t.Run("table", func(t *testing.T) {
		out, err := runCommand(t, env, nil, "list")
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		for _, want := range []string{"ID", "bert_base", "RoBERTa base", "registered"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := runCommand(t, env, nil, "list", "--json")
		if err != nil {
			t.Fatalf("list --json error = %v", err)
		}
		var entries []ModelEntry
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if len(entries) != 2 || entries[0].ID != "bert_base" {
			t.Errorf("entries = %+v", entries)
		}
	})
}

func TestPrepareCommand(t *testing.T) {
	server := archiveServer(t, map[string][]byte{
		"/bert.zip": buildZip(t, zipEntry{name: "bert/config.json", body: "{}"}),
		"/flat.zip": buildZip(t, zipEntry{name: "config.json", body: "{}"}),
	})
	env := newTestEnv(t, registryFor(server, "bert", "flat"))

	out, err := runCommand(t, env, []ManagerOption{
		WithHTTPClient(server.Client()),
		WithPacker(&writingPacker{}),
	}, "prepare")
	if err != nil {
		t.Fatalf("prepare error = %v\n%s", err, out)
	}

	for _, want := range []string{"bert: downloading", "bert: extracting", "bert: packing", "flat: skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	artifact := filepath.Join(env.cfg.ArtifactsDir, "bert"+ArtifactExt)
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
}

func TestFetchCommandQuiet(t *testing.T) {
	server := archiveServer(t, map[string][]byte{
		"/bert.zip": buildZip(t, zipEntry{name: "bert/config.json", body: "{}"}),
	})
	env := newTestEnv(t, registryFor(server, "bert"))

	out, err := runCommand(t, env, []ManagerOption{WithHTTPClient(server.Client())}, "fetch", "bert", "--quiet")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	if out != "" {
		t.Errorf("quiet fetch printed %q", out)
	}
}

func TestFetchCommandContinuesAfterFailure(t *testing.T) {
	server := archiveServer(t, map[string][]byte{
		"/bert.zip": buildZip(t, zipEntry{name: "bert/config.json", body: "{}"}),
	})
	env := newTestEnv(t, registryFor(server, "bert"))

	_, err := runCommand(t, env, []ManagerOption{WithHTTPClient(server.Client())}, "fetch", "nope", "bert", "--quiet")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("fetch error = %v, want ErrModelNotFound", err)
	}

	reg, err := newStorage(env.cfg.ConfigFile).loadRegistry()
	if err != nil {
		t.Fatalf("loadRegistry() error = %v", err)
	}
	if e, _ := reg.entry("bert"); e.ModelPath == "" {
		t.Error("bert was not fetched after the unknown id failed")
	}
}

func TestPackCommandUnknownModel(t *testing.T) {
	env := newTestEnv(t, sampleRegistry)

	if _, err := runCommand(t, env, nil, "pack", "nope"); err == nil {
		t.Error("pack of an unknown model should fail")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "0s"},
		{5 * time.Second, "5s"},
		{150 * time.Second, "2m 30s"},
		{2 * time.Minute, "2m"},
		{65 * time.Minute, "1h 5m"},
		{time.Hour, "1h"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRenderProgress(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)

	var buf bytes.Buffer
	renderProgress(&buf, 50, 100, start)
	if !strings.Contains(buf.String(), "50%") {
		t.Errorf("known total output = %q, want percentage", buf.String())
	}

	buf.Reset()
	renderProgress(&buf, 2048, 0, start)
	if !strings.Contains(buf.String(), "2.00 KB") || strings.Contains(buf.String(), "%") {
		t.Errorf("unknown total output = %q, want byte count only", buf.String())
	}
}
