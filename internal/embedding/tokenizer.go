package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token IDs and the vocabulary range hashed word IDs fall into.
const (
	tokenCLS         int64 = 101
	tokenSEP         int64 = 102
	firstWordTokenID       = 1000
	vocabSize              = 30522

	defaultMaxTokens = 256
)

// WordPieceLite approximates BERT basic tokenization: lowercase, split on whitespace,
// punctuation as separate tokens. Word IDs come from hashing, not a vocabulary file, so
// the sequence shape matches the model input even though IDs are not the model's own.
type WordPieceLite struct{}

// Tokenize returns input_ids, attention_mask and token_type_ids padded to maxTokens.
// [CLS] and [SEP] always frame the sequence; words past the window are dropped.
func (WordPieceLite) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	seq := append([]int64{tokenCLS}, wordIDs(text, maxTokens-2)...)
	if len(seq) < maxTokens {
		seq = append(seq, tokenSEP)
	}
	for i, id := range seq {
		inputIDs[i] = id
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// Count returns the attended positions Tokenize would produce for text.
func (WordPieceLite) Count(text string, maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return min(len(basicTokens(text))+2, maxTokens)
}

func wordIDs(text string, limit int) []int64 {
	if limit <= 0 {
		return nil
	}
	toks := basicTokens(text)
	if len(toks) > limit {
		toks = toks[:limit]
	}
	ids := make([]int64, len(toks))
	for i, tok := range toks {
		ids[i] = tokenID(tok)
	}
	return ids
}

// basicTokens lowercases text and splits it into words and single punctuation marks.
func basicTokens(text string) []string {
	var toks []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			toks = append(toks, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			toks = append(toks, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return toks
}

func tokenID(tok string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return firstWordTokenID + int64(h.Sum32()%(vocabSize-firstWordTokenID))
}
