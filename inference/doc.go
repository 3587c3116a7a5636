// Package inference classifies patent text with a packed transformer model.
//
// An Engine loads a packed artifact, tokenizes the input, runs one forward
// pass with attention capture and derives three things from the output: the
// predicted label, a confidence distribution over the label space and one
// attention weight per input token.
//
// The transformer itself sits behind the Tokenizer and Model interfaces. The
// bundled backend is a BERT/RoBERTa sequence classifier that reads
// HuggingFace-style model directories (config.json, model.safetensors and
// vocab.txt or tokenizer.json). LoadPretrained builds an Artifact from such a
// directory and WriteArtifact persists it as a gob stream holding exactly two
// values: the tokenizer state followed by the model state.
//
// Attention weights are best effort. When the captured attention does not line
// up with the tokens, every weight is reported absent and inference still
// succeeds.
package inference
