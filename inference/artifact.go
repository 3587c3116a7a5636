package inference

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfluke/loom/nn"
)

// Tokenizer kinds stored in a TokenizerState.
const (
	TokenizerWordPiece = "wordpiece"
	TokenizerJSON      = "tokenizer.json"
)

// TokenizerState is the serializable form of a tokenizer.
type TokenizerState struct {
	Kind      string
	MaxLength int

	// Vocab and DoLowerCase are set for TokenizerWordPiece.
	Vocab       []string
	DoLowerCase bool

	// JSON holds the tokenizer.json content for TokenizerJSON.
	JSON []byte
}

// Open builds a Tokenizer from s.
func (s TokenizerState) Open() (Tokenizer, error) {
	switch s.Kind {
	case TokenizerWordPiece:
		return NewWordPiece(s.Vocab, s.DoLowerCase, s.MaxLength)
	case TokenizerJSON:
		return newJSONTokenizer(s.JSON, s.MaxLength)
	default:
		return nil, fmt.Errorf("unknown tokenizer kind %q", s.Kind)
	}
}

// Artifact is a packed model: a tokenizer and an encoder ready for inference.
type Artifact struct {
	Tokenizer TokenizerState
	Model     ModelState
}

// Open builds the tokenizer and model held by a.
func (a *Artifact) Open() (Tokenizer, Model, error) {
	tok, err := a.Tokenizer.Open()
	if err != nil {
		return nil, nil, err
	}
	model, err := NewEncoder(a.Model)
	if err != nil {
		return nil, nil, err
	}
	return tok, model, nil
}

// tokenizerConfig holds the tokenizer_config.json keys that affect
// tokenization.
type tokenizerConfig struct {
	DoLowerCase    *bool `json:"do_lower_case"`
	ModelMaxLength int   `json:"model_max_length"`
}

// LoadPretrained reads a HuggingFace model directory holding config.json,
// model.safetensors and either vocab.txt or tokenizer.json.
func LoadPretrained(dir string) (*Artifact, error) {
	cfg, err := readEncoderConfig(dir)
	if err != nil {
		return nil, err
	}

	tok, err := readTokenizerState(dir, cfg.maxSequence())
	if err != nil {
		return nil, err
	}
	if tok.Kind == TokenizerWordPiece && len(tok.Vocab) > cfg.VocabSize {
		return nil, fmt.Errorf("%w: vocab.txt has %d tokens, model has %d", ErrUnsupportedModel, len(tok.Vocab), cfg.VocabSize)
	}

	weights := filepath.Join(dir, "model.safetensors")
	if _, err := os.Stat(weights); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedModel, err)
	}
	tensors, err := nn.LoadSafetensors(weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedModel, weights, err)
	}

	model, err := newModelState(cfg, tensors)
	if err != nil {
		return nil, err
	}
	return &Artifact{Tokenizer: tok, Model: model}, nil
}

// readTokenizerState prefers vocab.txt and falls back to tokenizer.json.
func readTokenizerState(dir string, maxLength int) (TokenizerState, error) {
	tc := tokenizerConfig{}
	if data, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json")); err == nil {
		if err := json.Unmarshal(data, &tc); err != nil {
			return TokenizerState{}, fmt.Errorf("%w: tokenizer_config.json: %v", ErrUnsupportedModel, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return TokenizerState{}, fmt.Errorf("%w: %v", ErrUnsupportedModel, err)
	}
	if tc.ModelMaxLength > 0 && tc.ModelMaxLength < maxLength {
		maxLength = tc.ModelMaxLength
	}

	vocab, err := readVocab(filepath.Join(dir, "vocab.txt"))
	switch {
	case err == nil:
		lower := true
		if tc.DoLowerCase != nil {
			lower = *tc.DoLowerCase
		}
		return TokenizerState{
			Kind:        TokenizerWordPiece,
			MaxLength:   maxLength,
			Vocab:       vocab,
			DoLowerCase: lower,
		}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return TokenizerState{}, fmt.Errorf("%w: %v", ErrUnsupportedModel, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return TokenizerState{}, fmt.Errorf("%w: no vocab.txt or tokenizer.json in %s", ErrUnsupportedModel, dir)
	}
	return TokenizerState{Kind: TokenizerJSON, MaxLength: maxLength, JSON: data}, nil
}

// WriteArtifact writes a to path as a gob stream of the tokenizer state
// followed by the model state. The file is replaced atomically.
func WriteArtifact(path string, a *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := gob.NewEncoder(w)
	if err := enc.Encode(a.Tokenizer); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding tokenizer: %w", err)
	}
	if err := enc.Encode(a.Model); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadArtifact reads an artifact written by WriteArtifact.
func ReadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	defer f.Close()

	var a Artifact
	dec := gob.NewDecoder(bufio.NewReader(f))
	if err := dec.Decode(&a.Tokenizer); err != nil {
		return nil, fmt.Errorf("%w: %s: tokenizer: %v", ErrArtifactLoad, path, err)
	}
	if err := dec.Decode(&a.Model); err != nil {
		return nil, fmt.Errorf("%w: %s: model: %v", ErrArtifactLoad, path, err)
	}
	return &a, nil
}

// ArtifactLoader loads artifacts from disk. It is the default Loader.
type ArtifactLoader struct{}

var _ Loader = ArtifactLoader{}

// Load implements Loader.
func (ArtifactLoader) Load(path string) (Tokenizer, Model, error) {
	a, err := ReadArtifact(path)
	if err != nil {
		return nil, nil, err
	}
	tok, model, err := a.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoad, path, err)
	}
	return tok, model, nil
}
