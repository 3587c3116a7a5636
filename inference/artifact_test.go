package inference

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func tinyArtifact(t *testing.T, family string) *Artifact {
	t.Helper()
	cfg := tinyConfig(family)
	return &Artifact{
		Tokenizer: TokenizerState{
			Kind:        TokenizerWordPiece,
			MaxLength:   cfg.maxSequence(),
			Vocab:       testVocab,
			DoLowerCase: true,
		},
		Model: tinyState(t, cfg),
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pickled", "bert.gob")
	want := tinyArtifact(t, FamilyBERT)

	if err := WriteArtifact(path, want); err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}

	got, err := ReadArtifact(path)
	if err != nil {
		t.Fatalf("ReadArtifact() error = %v", err)
	}

	if got.Tokenizer.Kind != want.Tokenizer.Kind || got.Tokenizer.MaxLength != want.Tokenizer.MaxLength {
		t.Errorf("Tokenizer = %+v, want %+v", got.Tokenizer, want.Tokenizer)
	}
	if len(got.Tokenizer.Vocab) != len(want.Tokenizer.Vocab) {
		t.Errorf("len(Vocab) = %d, want %d", len(got.Tokenizer.Vocab), len(want.Tokenizer.Vocab))
	}
	if got.Model.Config.Family != FamilyBERT || got.Model.Config.NumLabels != want.Model.Config.NumLabels {
		t.Errorf("Config = %+v, want %+v", got.Model.Config, want.Model.Config)
	}
	for name, data := range want.Model.Tensors {
		if len(got.Model.Tensors[name]) != len(data) {
			t.Errorf("tensor %s has %d elements, want %d", name, len(got.Model.Tensors[name]), len(data))
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("artifact directory holds %d files, want only the artifact", len(entries))
	}
}

func TestReadArtifactErrors(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.gob")
	if err := os.WriteFile(corrupt, []byte("not a gob stream"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(dir, "missing.gob")},
		{name: "corrupt", path: corrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadArtifact(tt.path); !errors.Is(err, ErrArtifactLoad) {
				t.Errorf("ReadArtifact() error = %v, want ErrArtifactLoad", err)
			}

			_, err := NewEngine().Infer(context.Background(), tt.path, "text")
			if !errors.Is(err, ErrArtifactLoad) {
				t.Errorf("Infer() error = %v, want ErrArtifactLoad", err)
			}
		})
	}
}

func TestArtifactLoaderRejectsInvalidState(t *testing.T) {
	a := tinyArtifact(t, FamilyBERT)
	delete(a.Model.Tensors, "classifier.weight")

	path := filepath.Join(t.TempDir(), "broken.gob")
	if err := WriteArtifact(path, a); err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}

	if _, _, err := (ArtifactLoader{}).Load(path); !errors.Is(err, ErrArtifactLoad) {
		t.Errorf("Load() error = %v, want ErrArtifactLoad", err)
	}
}

func TestInferWithArtifact(t *testing.T) {
	for _, family := range []string{FamilyBERT, FamilyRoBERTa} {
		t.Run(family, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), family+".gob")
			if err := WriteArtifact(path, tinyArtifact(t, family)); err != nil {
				t.Fatalf("WriteArtifact() error = %v", err)
			}

			res, err := NewEngine().Infer(context.Background(), path, "Fraud detection, payment.")
			if err != nil {
				t.Fatalf("Infer() error = %v", err)
			}

			known := false
			for _, l := range DefaultLabels.Labels() {
				known = known || l.Name == res.Label
			}
			if !known {
				t.Errorf("Label = %q, want one of the default labels", res.Label)
			}

			wantTokens := []string{"[CLS]", "fraud", "detect", "##ion", ",", "pay", "##ment", ".", "[SEP]"}
			if len(res.Tokens) != len(wantTokens) {
				t.Fatalf("len(Tokens) = %d, want %d", len(res.Tokens), len(wantTokens))
			}
			sum := 0.0
			for i, tw := range res.Tokens {
				if tw.Text != wantTokens[i] {
					t.Errorf("Tokens[%d].Text = %q, want %q", i, tw.Text, wantTokens[i])
				}
				if !tw.Present {
					t.Errorf("Tokens[%d] has no weight", i)
				}
				sum += tw.Weight
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("attention weights sum to %v, want 1", sum)
			}
		})
	}
}

func TestReadTokenizerState(t *testing.T) {
	t.Run("vocab with config", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "vocab.txt"), "[PAD]\n[UNK]\r\n[CLS]\n[SEP]\n")
		writeFile(t, filepath.Join(dir, "tokenizer_config.json"), `{"do_lower_case": false, "model_max_length": 128}`)

		s, err := readTokenizerState(dir, 512)
		if err != nil {
			t.Fatalf("readTokenizerState() error = %v", err)
		}
		if s.Kind != TokenizerWordPiece || s.DoLowerCase || s.MaxLength != 128 {
			t.Errorf("state = %+v", s)
		}
		if len(s.Vocab) != 4 || s.Vocab[1] != "[UNK]" {
			t.Errorf("Vocab = %q", s.Vocab)
		}
	})

	t.Run("vocab defaults to lower case", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "vocab.txt"), "[UNK]\n")

		s, err := readTokenizerState(dir, 512)
		if err != nil {
			t.Fatalf("readTokenizerState() error = %v", err)
		}
		if !s.DoLowerCase || s.MaxLength != 512 {
			t.Errorf("state = %+v", s)
		}
	})

	t.Run("tokenizer json fallback", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "tokenizer.json"), `{"model":{}}`)

		s, err := readTokenizerState(dir, 512)
		if err != nil {
			t.Fatalf("readTokenizerState() error = %v", err)
		}
		if s.Kind != TokenizerJSON || string(s.JSON) != `{"model":{}}` {
			t.Errorf("state = %+v", s)
		}
	})

	t.Run("nothing to load", func(t *testing.T) {
		if _, err := readTokenizerState(t.TempDir(), 512); !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("readTokenizerState() error = %v, want ErrUnsupportedModel", err)
		}
	})
}

func TestLoadPretrainedErrors(t *testing.T) {
	config := `{"model_type":"bert","vocab_size":4,"hidden_size":8,"num_hidden_layers":1,
		"num_attention_heads":2,"intermediate_size":16,"max_position_embeddings":8,"num_labels":2}`

	t.Run("no config", func(t *testing.T) {
		if _, err := LoadPretrained(t.TempDir()); !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("LoadPretrained() error = %v, want ErrUnsupportedModel", err)
		}
	})

	t.Run("no weights", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "config.json"), config)
		writeFile(t, filepath.Join(dir, "vocab.txt"), "[PAD]\n[UNK]\n[CLS]\n[SEP]\n")

		if _, err := LoadPretrained(dir); !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("LoadPretrained() error = %v, want ErrUnsupportedModel", err)
		}
	})

	t.Run("vocabulary larger than model", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "config.json"), config)
		writeFile(t, filepath.Join(dir, "vocab.txt"), "[PAD]\n[UNK]\n[CLS]\n[SEP]\nextra\n")

		if _, err := LoadPretrained(dir); !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("LoadPretrained() error = %v, want ErrUnsupportedModel", err)
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
