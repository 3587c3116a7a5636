package web

import "errors"

// Errors returned for invalid prediction requests.
var (
	ErrEmptyText        = errors.New("web: text is empty")
	ErrInvalidIntensity = errors.New("web: intensity must be between 1 and 100")
	ErrNotPacked        = errors.New("web: model has no packed artifact")
)
