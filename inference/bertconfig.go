package inference

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// Model families understood by the encoder.
const (
	FamilyBERT    = "bert"
	FamilyRoBERTa = "roberta"
)

// EncoderConfig holds the hyperparameters read from a model's config.json.
type EncoderConfig struct {
	Family                string  `json:"model_type"`
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumLayers             int     `json:"num_hidden_layers"`
	NumHeads              int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	HiddenAct             string  `json:"hidden_act"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	TypeVocabSize         int     `json:"type_vocab_size"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
	PadTokenID            int     `json:"pad_token_id"`
	NumLabels             int     `json:"num_labels"`

	// ID2Label is kept for reference; the engine's LabelSpace names classes.
	ID2Label map[string]string `json:"id2label"`
}

// readEncoderConfig parses dir/config.json and fills defaults.
func readEncoderConfig(dir string) (EncoderConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return EncoderConfig{}, fmt.Errorf("%w: %v", ErrUnsupportedModel, err)
	}

	var cfg EncoderConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return EncoderConfig{}, fmt.Errorf("%w: config.json: %v", ErrUnsupportedModel, err)
	}

	if cfg.NumLabels == 0 {
		cfg.NumLabels = len(cfg.ID2Label)
	}
	if cfg.LayerNormEps == 0 {
		cfg.LayerNormEps = 1e-12
	}
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	if cfg.TypeVocabSize == 0 {
		cfg.TypeVocabSize = 2
	}
	if cfg.Family == FamilyRoBERTa && cfg.PadTokenID == 0 {
		cfg.PadTokenID = 1
	}

	return cfg, cfg.validate()
}

// validate checks that the configuration describes a supported encoder.
func (c EncoderConfig) validate() error {
	if c.Family != FamilyBERT && c.Family != FamilyRoBERTa {
		return fmt.Errorf("%w: model_type %q", ErrUnsupportedModel, c.Family)
	}
	if !slices.Contains([]string{"gelu", "gelu_new", "gelu_pytorch_tanh", "relu"}, c.HiddenAct) {
		return fmt.Errorf("%w: hidden_act %q", ErrUnsupportedModel, c.HiddenAct)
	}

	dims := map[string]int{
		"vocab_size":              c.VocabSize,
		"hidden_size":             c.HiddenSize,
		"num_hidden_layers":       c.NumLayers,
		"num_attention_heads":     c.NumHeads,
		"intermediate_size":       c.IntermediateSize,
		"max_position_embeddings": c.MaxPositionEmbeddings,
		"num_labels":              c.NumLabels,
	}
	for name, v := range dims {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrUnsupportedModel, name, v)
		}
	}
	if c.HiddenSize%c.NumHeads != 0 {
		return fmt.Errorf("%w: hidden_size %d not divisible by %d heads", ErrUnsupportedModel, c.HiddenSize, c.NumHeads)
	}
	return nil
}

// maxSequence returns the longest input, special tokens included, the
// position embeddings can address.
func (c EncoderConfig) maxSequence() int {
	if c.Family == FamilyRoBERTa {
		return c.MaxPositionEmbeddings - c.PadTokenID - 1
	}
	return c.MaxPositionEmbeddings
}

// prefix returns the weight name prefix of the encoder body.
func (c EncoderConfig) prefix() string {
	return c.Family + "."
}

// layerKey returns the weight name of a per-layer tensor.
func (c EncoderConfig) layerKey(layer int, name string) string {
	return c.prefix() + "encoder.layer." + strconv.Itoa(layer) + "." + name
}
