package inference

import "errors"

// Sentinel errors for inference.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrArtifactLoad indicates the packed artifact is missing, corrupt or incompatible.
	ErrArtifactLoad = errors.New("inference: artifact load failed")

	// ErrTokenization indicates the input text could not be tokenized.
	ErrTokenization = errors.New("inference: tokenization failed")

	// ErrInferenceRuntime indicates the forward pass failed.
	ErrInferenceRuntime = errors.New("inference: forward pass failed")

	// ErrUnsupportedModel indicates a pretrained directory this backend cannot load.
	ErrUnsupportedModel = errors.New("inference: unsupported model")
)
