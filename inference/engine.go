package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/text/unicode/norm"
)

// LabelConfidence is the softmax probability of one class, in percent.
type LabelConfidence struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
}

// TokenWeight is one input token and its attention weight.
// Present is false when no usable attention was captured.
type TokenWeight struct {
	Text    string  `json:"text"`
	Weight  float64 `json:"weight"`
	Present bool    `json:"present"`
}

// Result is the outcome of one Infer call. It is owned by the caller.
type Result struct {
	// Label is the predicted class name.
	Label string `json:"label"`

	// Confidence holds one entry per class in class index order. Percentages
	// are rounded to two decimals and sum to 100 within rounding error.
	Confidence []LabelConfidence `json:"confidence"`

	// Tokens holds the model input tokens in input order.
	Tokens []TokenWeight `json:"tokens"`
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLoader replaces the artifact loader. The default reads artifacts written
// by WriteArtifact.
func WithLoader(l Loader) EngineOption {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLabels sets the label space. The default is DefaultLabels.
func WithLabels(ls *LabelSpace) EngineOption {
	return func(e *Engine) {
		e.labels = ls
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine runs single, synchronous classifications.
// The model is loaded on every call and released when the call returns.
type Engine struct {
	loader Loader
	labels *LabelSpace
	logger Logger
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		loader: ArtifactLoader{},
		labels: DefaultLabels,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Labels returns the engine's label space.
func (e *Engine) Labels() *LabelSpace {
	return e.labels
}

// Infer classifies text with the artifact at artifactPath.
func (e *Engine) Infer(ctx context.Context, artifactPath, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	tok, model, err := e.loader.Load(artifactPath)
	if err != nil {
		if errors.Is(err, ErrArtifactLoad) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %s: %v", ErrArtifactLoad, artifactPath, err)
	}
	e.debug("artifact loaded", "path", artifactPath, "elapsed", time.Since(start))

	ids, tokens, err := tok.Tokenize(norm.NFC.String(text))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTokenization, err)
	}
	if len(ids) == 0 || len(ids) != len(tokens) {
		return Result{}, fmt.Errorf("%w: got %d ids for %d tokens", ErrTokenization, len(ids), len(tokens))
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start = time.Now()
	out, err := forward(model, ids)
	if err != nil {
		return Result{}, err
	}
	if len(out.Logits) == 0 {
		return Result{}, fmt.Errorf("%w: model returned no logits", ErrInferenceRuntime)
	}
	for _, l := range out.Logits {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return Result{}, fmt.Errorf("%w: non-finite logits %v", ErrInferenceRuntime, out.Logits)
		}
	}
	e.debug("forward pass done", "tokens", len(ids), "elapsed", time.Since(start))

	res := Result{
		Label:      e.labels.Name(argmax(out.Logits)),
		Confidence: e.confidence(out.Logits),
		Tokens:     make([]TokenWeight, len(tokens)),
	}

	weights, ok := attentionWeights(out.Attentions, len(tokens))
	if !ok {
		e.debug("attention unusable, highlighting disabled", "tokens", len(tokens))
	}
	for i, t := range tokens {
		res.Tokens[i] = TokenWeight{Text: t}
		if ok {
			res.Tokens[i].Weight = weights[i]
			res.Tokens[i].Present = true
		}
	}

	return res, nil
}

// forward runs the model and turns a panic into ErrInferenceRuntime.
func forward(model Model, ids []int) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInferenceRuntime, r)
		}
	}()

	out, err = model.Forward(ids)
	if err != nil && !errors.Is(err, ErrInferenceRuntime) {
		err = fmt.Errorf("%w: %v", ErrInferenceRuntime, err)
	}
	return out, err
}

// confidence converts logits to rounded percentages labelled by class.
func (e *Engine) confidence(logits []float64) []LabelConfidence {
	probs := softmax(logits)
	out := make([]LabelConfidence, len(probs))
	for i, p := range probs {
		out[i] = LabelConfidence{
			Label:   e.labels.Name(i),
			Percent: math.Round(p*100*100) / 100,
		}
	}
	return out
}

// attentionWeights extracts the final layer, first head, first query row.
// It reports false when attention is missing, malformed or does not have
// exactly n entries.
func attentionWeights(att [][][][]float64, n int) ([]float64, bool) {
	if len(att) == 0 {
		return nil, false
	}
	last := att[len(att)-1]
	if len(last) == 0 || len(last[0]) == 0 {
		return nil, false
	}

	row := last[0][0]
	if len(row) != n {
		return nil, false
	}
	for _, w := range row {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, false
		}
	}
	return append([]float64(nil), row...), true
}

// softmax applies softmax to a slice of logits.
func softmax(logits []float64) []float64 {
	// Find max for numerical stability
	maxLogit := logits[0]
	for _, logit := range logits {
		if logit > maxLogit {
			maxLogit = logit
		}
	}

	expSum := 0.0
	probs := make([]float64, len(logits))
	for i, logit := range logits {
		probs[i] = math.Exp(logit - maxLogit)
		expSum += probs[i]
	}

	for i := range probs {
		probs[i] /= expSum
	}
	return probs
}

// argmax returns the index of the largest value, the first one on ties.
func argmax(data []float64) int {
	best := 0
	for i, v := range data {
		if v > data[best] {
			best = i
		}
	}
	return best
}

func (e *Engine) debug(msg string, keysAndValues ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, keysAndValues...)
	}
}
