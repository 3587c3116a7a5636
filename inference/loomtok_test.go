package inference

import (
	"fmt"
	"strings"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

const testTokenizerJSON = `{
  "model": {
    "type": "BPE",
    "vocab": {
      "<s>": 0, "<pad>": 1, "</s>": 2, "<unk>": 3,
      "f": 4, "r": 5, "a": 6, "u": 7, "d": 8, "Ġ": 9,
      "fr": 10, "au": 11, "fraud": 12, "Ġfraud": 13, ",": 14
    },
    "merges": ["f r", "a u", "fr au", "frau d"]
  },
  "added_tokens": [
    {"id": 0, "content": "<s>", "special": true},
    {"id": 1, "content": "<pad>", "special": true},
    {"id": 2, "content": "</s>", "special": true},
    {"id": 3, "content": "<unk>", "special": true}
  ]
}`

func TestJSONTokenizerTokenize(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		maxLen     int
		wantIDs    []int
		wantTokens []string
	}{
		{
			name:       "space prefixed words",
			text:       "fraud fraud,",
			maxLen:     16,
			wantIDs:    []int{0, 12, 13, 14, 2},
			wantTokens: []string{"<s>", "fraud", "fraud", ",", "</s>"},
		},
		{
			name:       "merged pieces",
			text:       "fau",
			maxLen:     16,
			wantIDs:    []int{0, 4, 11, 2},
			wantTokens: []string{"<s>", "f", "au", "</s>"},
		},
		{
			name:       "unknown character",
			text:       "z",
			maxLen:     16,
			wantIDs:    []int{0, 3, 2},
			wantTokens: []string{"<s>", "<unk>", "</s>"},
		},
		{
			name:       "empty",
			text:       "",
			maxLen:     16,
			wantIDs:    []int{0, 2},
			wantTokens: []string{"<s>", "</s>"},
		},
		{
			name:       "truncated before the end token",
			text:       "fraud fraud fraud",
			maxLen:     4,
			wantIDs:    []int{0, 12, 13, 2},
			wantTokens: []string{"<s>", "fraud", "fraud", "</s>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := newJSONTokenizer([]byte(testTokenizerJSON), tt.maxLen)
			if err != nil {
				t.Fatalf("newJSONTokenizer() error = %v", err)
			}

			ids, tokens, err := tok.Tokenize(tt.text)
			if err != nil {
				t.Fatalf("Tokenize() error = %v", err)
			}
			testboil.FailTestIfDiff(t, fmt.Sprint(ids), fmt.Sprint(tt.wantIDs))
			testboil.FailTestIfDiff(t, strings.Join(tokens, " "), strings.Join(tt.wantTokens, " "))
		})
	}
}

func TestJSONTokenizerFromState(t *testing.T) {
	state := TokenizerState{Kind: TokenizerJSON, MaxLength: 8, JSON: []byte(testTokenizerJSON)}
	tok, err := state.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ids, _, err := tok.Tokenize("fraud")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if ids[0] != 0 || ids[len(ids)-1] != 2 {
		t.Errorf("ids = %v, want <s> first and </s> last", ids)
	}
}

func TestNewJSONTokenizerErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		maxLen int
	}{
		{"invalid json", `{`, 8},
		{"no vocabulary", `{"model":{}}`, 8},
		{"no begin token", `{"model":{"vocab":{"a":0,"</s>":1}}}`, 8},
		{"no end token", `{"model":{"vocab":{"a":0,"<s>":1}}}`, 8},
		{"max length", testTokenizerJSON, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newJSONTokenizer([]byte(tt.data), tt.maxLen); err == nil {
				t.Error("newJSONTokenizer() succeeded, want error")
			}
		})
	}
}

func TestByteLevel(t *testing.T) {
	tests := []struct {
		text, want string
	}{
		{" fraud", "Ġfraud"},
		{"\n", "Ċ"},
		{"é", "Ã©"},
		{"a,b", "a,b"},
	}

	for _, tt := range tests {
		got := byteLevel(tt.text)
		if got != tt.want {
			t.Errorf("byteLevel(%q) = %q, want %q", tt.text, got, tt.want)
		}
		if back := fromByteLevel(got); back != tt.text {
			t.Errorf("fromByteLevel(%q) = %q, want %q", got, back, tt.text)
		}
	}
}
