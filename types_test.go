package models

import "testing"

func TestConfigWithDefaults(t *testing.T) {
	got := Config{}.withDefaults()

	if got.ConfigFile != DefaultConfigFile {
		t.Errorf("ConfigFile = %q, want %q", got.ConfigFile, DefaultConfigFile)
	}
	if got.ModelsDir != DefaultModelsDir {
		t.Errorf("ModelsDir = %q, want %q", got.ModelsDir, DefaultModelsDir)
	}
	if got.ArtifactsDir != DefaultArtifactsDir {
		t.Errorf("ArtifactsDir = %q, want %q", got.ArtifactsDir, DefaultArtifactsDir)
	}

	custom := Config{ConfigFile: "a.ini", ModelsDir: "m", ArtifactsDir: "p"}.withDefaults()
	if custom.ConfigFile != "a.ini" || custom.ModelsDir != "m" || custom.ArtifactsDir != "p" {
		t.Errorf("withDefaults() overwrote explicit values: %+v", custom)
	}
}

func TestModelEntryName(t *testing.T) {
	tests := []struct {
		name  string
		entry ModelEntry
		want  string
	}{
		{"display name", ModelEntry{ID: "bert", DisplayName: "BERT base"}, "BERT base"},
		{"fallback to id", ModelEntry{ID: "bert"}, "bert"},
		{"blank display name", ModelEntry{ID: "roberta", DisplayName: "   "}, "roberta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModelEntryPacked(t *testing.T) {
	if (ModelEntry{}).Packed() {
		t.Error("empty entry should not be packed")
	}
	if !(ModelEntry{ArtifactPath: "pickled_models/bert.gob"}).Packed() {
		t.Error("entry with artifact path should be packed")
	}
}
