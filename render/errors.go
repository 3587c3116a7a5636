package render

import "errors"

var (
	// ErrLengthMismatch indicates tokens and weights of different lengths.
	ErrLengthMismatch = errors.New("render: tokens and weights differ in length")

	// ErrNoData indicates a chart request without any labels.
	ErrNoData = errors.New("render: nothing to chart")
)
