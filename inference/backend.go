package inference

// Tokenizer turns text into model input.
type Tokenizer interface {
	// Tokenize returns the model input ids, special tokens included, and the
	// display text of each id. Both slices have the same length. Input longer
	// than the model accepts is truncated from the end.
	Tokenize(text string) (ids []int, tokens []string, err error)
}

// Model runs the transformer forward pass.
type Model interface {
	// Forward classifies one sequence of input ids.
	Forward(ids []int) (Output, error)
}

// Output is the result of one forward pass.
type Output struct {
	// Logits holds one unnormalized score per class.
	Logits []float64

	// Attentions holds attention probabilities indexed [layer][head][query][key].
	// May be nil when the backend does not capture attention.
	Attentions [][][][]float64
}

// Loader opens the tokenizer and model stored at an artifact path.
type Loader interface {
	Load(path string) (Tokenizer, Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (Tokenizer, Model, error)

// Load calls f(path).
func (f LoaderFunc) Load(path string) (Tokenizer, Model, error) {
	return f(path)
}

// Logger is the interface for diagnostic logging.
// *slog.Logger satisfies this interface.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
