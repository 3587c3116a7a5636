package inference

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// WordPiece special tokens.
const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
	unkToken = "[UNK]"

	// maxWordRunes is the longest word split into pieces; longer words become [UNK].
	maxWordRunes = 100
)

// WordPiece is the BERT tokenizer: basic whitespace and punctuation
// splitting followed by greedy longest-match subword lookup.
type WordPiece struct {
	vocab  map[string]int
	inv    []string
	lower  bool
	maxLen int

	cls, sep, unk int
}

var _ Tokenizer = (*WordPiece)(nil)

// NewWordPiece builds a tokenizer over vocab, where vocab[i] is token id i.
// maxLen bounds the tokenized sequence including [CLS] and [SEP].
func NewWordPiece(vocab []string, lower bool, maxLen int) (*WordPiece, error) {
	if maxLen < 2 {
		return nil, fmt.Errorf("max length %d leaves no room for special tokens", maxLen)
	}

	w := &WordPiece{
		vocab:  make(map[string]int, len(vocab)),
		inv:    vocab,
		lower:  lower,
		maxLen: maxLen,
	}
	for i, tok := range vocab {
		if _, dup := w.vocab[tok]; !dup {
			w.vocab[tok] = i
		}
	}

	for _, special := range []struct {
		token string
		id    *int
	}{{clsToken, &w.cls}, {sepToken, &w.sep}, {unkToken, &w.unk}} {
		id, ok := w.vocab[special.token]
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", special.token)
		}
		*special.id = id
	}
	return w, nil
}

// readVocab reads a vocab.txt with one token per line.
func readVocab(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var vocab []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		vocab = append(vocab, strings.TrimRight(scanner.Text(), "\r"))
	}
	return vocab, scanner.Err()
}

// Tokenize implements Tokenizer.
func (w *WordPiece) Tokenize(text string) ([]int, []string, error) {
	var pieces []int
	for _, word := range w.basicTokens(text) {
		pieces = append(pieces, w.wordPieces(word)...)
	}

	if limit := w.maxLen - 2; len(pieces) > limit {
		pieces = pieces[:limit]
	}

	ids := make([]int, 0, len(pieces)+2)
	ids = append(ids, w.cls)
	ids = append(ids, pieces...)
	ids = append(ids, w.sep)

	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = w.inv[id]
	}
	return ids, tokens, nil
}

// basicTokens cleans text and splits it on whitespace and punctuation.
func (w *WordPiece) basicTokens(text string) []string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || isControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case isCJK(r):
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	var out []string
	for _, word := range strings.Fields(b.String()) {
		if w.lower {
			word = stripAccents(strings.ToLower(word))
		}
		out = append(out, splitPunct(word)...)
	}
	return out
}

// wordPieces splits one word into vocabulary ids, or returns [UNK].
func (w *WordPiece) wordPieces(word string) []int {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int{w.unk}
	}

	var ids []int
	for start := 0; start < len(runes); {
		end := len(runes)
		found := -1
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := w.vocab[sub]; ok {
				found = id
				break
			}
		}
		if found < 0 {
			return []int{w.unk}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

// stripAccents removes combining marks after canonical decomposition.
func stripAccents(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitPunct separates every punctuation rune into its own token.
func splitPunct(word string) []string {
	var out []string
	var cur []rune
	for _, r := range word {
		if isPunct(r) {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = cur[:0]
			}
			out = append(out, string(r))
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

// isPunct treats all non-alphanumeric ASCII as punctuation, like BERT does.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.In(r, unicode.Cc, unicode.Cf)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
