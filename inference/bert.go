package inference

import (
	"fmt"
	"math"
	"strings"
)

// ModelState is the serializable form of an encoder: its configuration and
// every weight tensor it uses, keyed by HuggingFace parameter name. Linear
// weights are stored row-major as [out][in].
type ModelState struct {
	Config  EncoderConfig
	Tensors map[string][]float32
}

// tensorSpec names a required tensor and its element count.
type tensorSpec struct {
	name string
	size int
}

// required lists every tensor the forward pass reads.
func (c EncoderConfig) required() []tensorSpec {
	h, inter, labels := c.HiddenSize, c.IntermediateSize, c.NumLabels
	p := c.prefix()

	specs := []tensorSpec{
		{p + "embeddings.word_embeddings.weight", c.VocabSize * h},
		{p + "embeddings.position_embeddings.weight", c.MaxPositionEmbeddings * h},
		{p + "embeddings.token_type_embeddings.weight", c.TypeVocabSize * h},
		{p + "embeddings.LayerNorm.weight", h},
		{p + "embeddings.LayerNorm.bias", h},
	}

	for l := 0; l < c.NumLayers; l++ {
		specs = append(specs,
			tensorSpec{c.layerKey(l, "attention.self.query.weight"), h * h},
			tensorSpec{c.layerKey(l, "attention.self.query.bias"), h},
			tensorSpec{c.layerKey(l, "attention.self.key.weight"), h * h},
			tensorSpec{c.layerKey(l, "attention.self.key.bias"), h},
			tensorSpec{c.layerKey(l, "attention.self.value.weight"), h * h},
			tensorSpec{c.layerKey(l, "attention.self.value.bias"), h},
			tensorSpec{c.layerKey(l, "attention.output.dense.weight"), h * h},
			tensorSpec{c.layerKey(l, "attention.output.dense.bias"), h},
			tensorSpec{c.layerKey(l, "attention.output.LayerNorm.weight"), h},
			tensorSpec{c.layerKey(l, "attention.output.LayerNorm.bias"), h},
			tensorSpec{c.layerKey(l, "intermediate.dense.weight"), inter * h},
			tensorSpec{c.layerKey(l, "intermediate.dense.bias"), inter},
			tensorSpec{c.layerKey(l, "output.dense.weight"), h * inter},
			tensorSpec{c.layerKey(l, "output.dense.bias"), h},
			tensorSpec{c.layerKey(l, "output.LayerNorm.weight"), h},
			tensorSpec{c.layerKey(l, "output.LayerNorm.bias"), h},
		)
	}

	if c.Family == FamilyRoBERTa {
		return append(specs,
			tensorSpec{"classifier.dense.weight", h * h},
			tensorSpec{"classifier.dense.bias", h},
			tensorSpec{"classifier.out_proj.weight", labels * h},
			tensorSpec{"classifier.out_proj.bias", labels},
		)
	}
	return append(specs,
		tensorSpec{p + "pooler.dense.weight", h * h},
		tensorSpec{p + "pooler.dense.bias", h},
		tensorSpec{"classifier.weight", labels * h},
		tensorSpec{"classifier.bias", labels},
	)
}

// normalizeTensorName maps legacy parameter names onto current ones.
func normalizeTensorName(name string) string {
	switch {
	case strings.HasSuffix(name, ".LayerNorm.gamma"):
		return strings.TrimSuffix(name, "gamma") + "weight"
	case strings.HasSuffix(name, ".LayerNorm.beta"):
		return strings.TrimSuffix(name, "beta") + "bias"
	}
	return name
}

// newModelState keeps the tensors the encoder needs and checks their sizes.
func newModelState(cfg EncoderConfig, tensors map[string][]float32) (ModelState, error) {
	named := make(map[string][]float32, len(tensors))
	for name, t := range tensors {
		named[normalizeTensorName(name)] = t
	}

	state := ModelState{Config: cfg, Tensors: make(map[string][]float32)}
	for _, spec := range cfg.required() {
		state.Tensors[spec.name] = named[spec.name]
	}
	return state, state.validate()
}

// validate checks the configuration and that every required tensor is present
// with the expected number of elements.
func (s ModelState) validate() error {
	if err := s.Config.validate(); err != nil {
		return err
	}
	for _, spec := range s.Config.required() {
		t, ok := s.Tensors[spec.name]
		if !ok || t == nil {
			return fmt.Errorf("%w: missing tensor %s", ErrUnsupportedModel, spec.name)
		}
		if len(t) != spec.size {
			return fmt.Errorf("%w: tensor %s has %d elements, want %d", ErrUnsupportedModel, spec.name, len(t), spec.size)
		}
	}
	return nil
}

// Encoder is a BERT or RoBERTa sequence classifier. It implements Model.
type Encoder struct {
	cfg EncoderConfig
	t   map[string][]float32
}

var _ Model = (*Encoder)(nil)

// NewEncoder validates s and returns an encoder that reads its tensors.
func NewEncoder(s ModelState) (*Encoder, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &Encoder{cfg: s.Config, t: s.Tensors}, nil
}

// Forward classifies one sequence and captures the attention probabilities
// of every layer and head.
func (e *Encoder) Forward(ids []int) (Output, error) {
	n := len(ids)
	if n == 0 {
		return Output{}, fmt.Errorf("%w: empty input", ErrInferenceRuntime)
	}
	if limit := e.cfg.maxSequence(); n > limit {
		return Output{}, fmt.Errorf("%w: %d tokens exceed the maximum of %d", ErrInferenceRuntime, n, limit)
	}
	for _, id := range ids {
		if id < 0 || id >= e.cfg.VocabSize {
			return Output{}, fmt.Errorf("%w: token id %d outside vocabulary of %d", ErrInferenceRuntime, id, e.cfg.VocabSize)
		}
	}

	x := e.embed(ids)
	attentions := make([][][][]float64, e.cfg.NumLayers)
	for l := 0; l < e.cfg.NumLayers; l++ {
		x, attentions[l] = e.layer(l, x)
	}

	return Output{Logits: e.classify(x[0]), Attentions: attentions}, nil
}

// embed sums word, position and token type embeddings and normalizes them.
func (e *Encoder) embed(ids []int) [][]float64 {
	h := e.cfg.HiddenSize
	p := e.cfg.prefix()
	word := e.t[p+"embeddings.word_embeddings.weight"]
	pos := e.t[p+"embeddings.position_embeddings.weight"]
	typ := e.t[p+"embeddings.token_type_embeddings.weight"]

	// RoBERTa numbers positions after the padding index.
	offset := 0
	if e.cfg.Family == FamilyRoBERTa {
		offset = e.cfg.PadTokenID + 1
	}

	x := make([][]float64, len(ids))
	for i, id := range ids {
		row := make([]float64, h)
		pi := i + offset
		for d := 0; d < h; d++ {
			row[d] = float64(word[id*h+d]) + float64(pos[pi*h+d]) + float64(typ[d])
		}
		x[i] = e.layerNorm(row, p+"embeddings.LayerNorm")
	}
	return x
}

// layer runs one post-LN transformer block and returns its attention
// probabilities indexed [head][query][key].
func (e *Encoder) layer(l int, x [][]float64) ([][]float64, [][][]float64) {
	n, h, heads := len(x), e.cfg.HiddenSize, e.cfg.NumHeads
	dh := h / heads
	scale := 1.0 / math.Sqrt(float64(dh))

	q := e.linearAll(x, e.cfg.layerKey(l, "attention.self.query"))
	k := e.linearAll(x, e.cfg.layerKey(l, "attention.self.key"))
	v := e.linearAll(x, e.cfg.layerKey(l, "attention.self.value"))

	probs := make([][][]float64, heads)
	mixed := make([][]float64, n)
	for i := range mixed {
		mixed[i] = make([]float64, h)
	}

	for hd := 0; hd < heads; hd++ {
		off := hd * dh
		probs[hd] = make([][]float64, n)
		for i := 0; i < n; i++ {
			scores := make([]float64, n)
			for j := 0; j < n; j++ {
				var s float64
				for d := 0; d < dh; d++ {
					s += q[i][off+d] * k[j][off+d]
				}
				scores[j] = s * scale
			}
			row := softmax(scores)
			probs[hd][i] = row

			for j := 0; j < n; j++ {
				for d := 0; d < dh; d++ {
					mixed[i][off+d] += row[j] * v[j][off+d]
				}
			}
		}
	}

	attnOut := e.linearAll(mixed, e.cfg.layerKey(l, "attention.output.dense"))
	for i := range x {
		attnOut[i] = e.layerNorm(add(x[i], attnOut[i]), e.cfg.layerKey(l, "attention.output.LayerNorm"))
	}

	inter := e.linearAll(attnOut, e.cfg.layerKey(l, "intermediate.dense"))
	for i := range inter {
		for d := range inter[i] {
			inter[i][d] = e.activate(inter[i][d])
		}
	}

	out := e.linearAll(inter, e.cfg.layerKey(l, "output.dense"))
	for i := range out {
		out[i] = e.layerNorm(add(attnOut[i], out[i]), e.cfg.layerKey(l, "output.LayerNorm"))
	}

	return out, probs
}

// classify maps the first token's hidden state to class logits.
func (e *Encoder) classify(first []float64) []float64 {
	if e.cfg.Family == FamilyRoBERTa {
		hidden := tanhAll(e.linear(first, "classifier.dense"))
		return e.linear(hidden, "classifier.out_proj")
	}
	pooled := tanhAll(e.linear(first, e.cfg.prefix()+"pooler.dense"))
	return e.linear(pooled, "classifier")
}

// linear computes W·x + b for the layer whose weight and bias are name.weight
// and name.bias.
func (e *Encoder) linear(x []float64, name string) []float64 {
	w, b := e.t[name+".weight"], e.t[name+".bias"]
	in := len(x)
	out := make([]float64, len(b))
	for o := range out {
		s := float64(b[o])
		row := w[o*in : (o+1)*in]
		for i, xi := range x {
			s += float64(row[i]) * xi
		}
		out[o] = s
	}
	return out
}

func (e *Encoder) linearAll(x [][]float64, name string) [][]float64 {
	out := make([][]float64, len(x))
	for i := range x {
		out[i] = e.linear(x[i], name)
	}
	return out
}

// layerNorm normalizes x and applies name.weight and name.bias.
func (e *Encoder) layerNorm(x []float64, name string) []float64 {
	gamma, beta := e.t[name+".weight"], e.t[name+".bias"]

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	variance := 0.0
	for _, v := range x {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(x))

	std := math.Sqrt(variance + e.cfg.LayerNormEps)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v-mean)/std*float64(gamma[i]) + float64(beta[i])
	}
	return out
}

// activate applies the configured hidden activation.
func (e *Encoder) activate(x float64) float64 {
	switch e.cfg.HiddenAct {
	case "relu":
		return math.Max(0, x)
	case "gelu_new", "gelu_pytorch_tanh":
		return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
	default:
		return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
	}
}

func add(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func tanhAll(x []float64) []float64 {
	for i := range x {
		x[i] = math.Tanh(x[i])
	}
	return x
}
