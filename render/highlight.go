package render

import (
	"fmt"
	"image/color"
	"strings"

	"golang.org/x/net/html"
)

// Weight is an optional token weight.
type Weight struct {
	Value   float64
	Present bool
}

// Highlight wraps every token that has a weight in a span whose background
// alpha is intensity × weight / max weight. Tokens without a weight are
// emitted as escaped text. Pieces are joined by a single space.
func Highlight(tokens []string, weights []Weight, base color.RGBA, intensity float64) (string, error) {
	if len(tokens) != len(weights) {
		return "", fmt.Errorf("%w: %d tokens, %d weights", ErrLengthMismatch, len(tokens), len(weights))
	}

	norm := maxWeight(weights)
	pieces := make([]string, len(tokens))
	for i, tok := range tokens {
		text := html.EscapeString(tok)
		if !weights[i].Present {
			pieces[i] = text
			continue
		}
		alpha := intensity * weights[i].Value / norm
		pieces[i] = fmt.Sprintf(`<span style="background-color:rgba(%d, %d, %d, %.4f);">%s</span>`,
			base.R, base.G, base.B, alpha, text)
	}
	return strings.Join(pieces, " "), nil
}

// maxWeight returns the largest present weight, or 1 when none is positive.
func maxWeight(weights []Weight) float64 {
	best, found := 0.0, false
	for _, w := range weights {
		if w.Present && (!found || w.Value > best) {
			best, found = w.Value, true
		}
	}
	if !found || best <= 0 {
		return 1
	}
	return best
}
