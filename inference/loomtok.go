package inference

import (
	"fmt"
	"strings"

	"github.com/openfluke/loom/tokenizer"
)

// Special token names tried in order for tokenizer.json vocabularies.
var (
	bosNames = []string{"<s>", "[CLS]"}
	eosNames = []string{"</s>", "[SEP]"}
	unkNames = []string{"<unk>", "[UNK]"}
)

// jsonTokenizer adapts a HuggingFace tokenizer.json, as used by RoBERTa
// checkpoints, to Tokenizer. The loom tokenizer supplies the vocabulary,
// the pre-tokenizer and the BPE merges. Byte-level mapping and the special
// tokens are added here since loom applies neither.
type jsonTokenizer struct {
	tk     *tokenizer.Tokenizer
	maxLen int

	bos, eos int
	unk      int // -1 when the vocabulary has no unknown token
	names    map[int]string
}

var _ Tokenizer = (*jsonTokenizer)(nil)

func newJSONTokenizer(data []byte, maxLen int) (*jsonTokenizer, error) {
	if maxLen < 2 {
		return nil, fmt.Errorf("max length %d leaves no room for special tokens", maxLen)
	}

	tk, err := tokenizer.LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("tokenizer.json: %w", err)
	}
	if tk.VocabSize() == 0 {
		return nil, fmt.Errorf("tokenizer.json has no vocabulary")
	}

	t := &jsonTokenizer{tk: tk, maxLen: maxLen, unk: -1, names: make(map[int]string)}
	var ok bool
	if t.bos, ok = t.special(bosNames); !ok {
		return nil, fmt.Errorf("tokenizer.json has no %s token", strings.Join(bosNames, " or "))
	}
	if t.eos, ok = t.special(eosNames); !ok {
		return nil, fmt.Errorf("tokenizer.json has no %s token", strings.Join(eosNames, " or "))
	}
	if id, ok := t.special(unkNames); ok {
		t.unk = id
	}
	return t, nil
}

// special returns the id of the first of names the tokenizer knows.
func (t *jsonTokenizer) special(names []string) (int, bool) {
	for _, name := range names {
		id, ok := t.tk.TokenToID(name)
		if !ok {
			id, ok = t.tk.AddedTokens[name]
		}
		if ok {
			t.names[id] = name
			return id, true
		}
	}
	return 0, false
}

// Tokenize implements Tokenizer. The sequence is wrapped in the begin and
// end tokens; overlong input keeps its leading pieces.
func (t *jsonTokenizer) Tokenize(text string) ([]int, []string, error) {
	var body []int
	for _, word := range t.tk.PreTokenizer.Split(text) {
		if word == "" {
			continue
		}
		body = append(body, t.encodeWord(byteLevel(word))...)
	}

	if limit := t.maxLen - 2; len(body) > limit {
		body = body[:limit]
	}

	ids := make([]int, 0, len(body)+2)
	ids = append(ids, t.bos)
	ids = append(ids, body...)
	ids = append(ids, t.eos)

	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = t.display(id)
	}
	return ids, tokens, nil
}

// encodeWord maps one byte-level word to ids. Whole-word vocabulary entries
// win over merges, which keeps "Ġ" attached to digits and punctuation that
// the loom pre-tokenizer would split off.
func (t *jsonTokenizer) encodeWord(word string) []int {
	if id, ok := t.tk.TokenToID(word); ok {
		return []int{id}
	}

	raw := t.tk.Encode(word, false)
	if len(raw) == 0 {
		if t.unk < 0 {
			return nil
		}
		return []int{t.unk}
	}
	ids := make([]int, len(raw))
	for i, id := range raw {
		ids[i] = int(id)
	}
	return ids
}

// display renders a token for highlighting: special tokens by name, the rest
// decoded from byte-level form without the leading space marker.
func (t *jsonTokenizer) display(id int) string {
	if name, ok := t.names[id]; ok {
		return name
	}
	tok, ok := t.tk.IDToToken(id)
	if !ok {
		return ""
	}
	if text := strings.TrimSpace(fromByteLevel(tok)); text != "" {
		return text
	}
	return tok
}

// byteRunes is the GPT-2 byte-to-rune table: printable bytes map to
// themselves, the rest to runes from U+0100 up. Space becomes 'Ġ'.
var byteRunes = func() [256]rune {
	var out [256]rune
	n := 0
	for b := 0; b < 256; b++ {
		switch {
		case b >= '!' && b <= '~', b >= 0xA1 && b <= 0xAC, b >= 0xAE:
			out[b] = rune(b)
		default:
			out[b] = rune(256 + n)
			n++
		}
	}
	return out
}()

var runeBytes = func() map[rune]byte {
	out := make(map[rune]byte, len(byteRunes))
	for b, r := range byteRunes {
		out[r] = byte(b)
	}
	return out
}()

func byteLevel(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteRune(byteRunes[s[i]])
	}
	return b.String()
}

func fromByteLevel(s string) string {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := runeBytes[r]; ok {
			buf = append(buf, b)
			continue
		}
		buf = append(buf, string(r)...)
	}
	return strings.ToValidUTF8(string(buf), "�")
}
