package indexer

import (
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	previewRunes  = 500
	languageRunes = 1000
)

var (
	portugueseWords = stopwords("o", "a", "de", "que", "e", "do", "da", "em", "um", "para")
	englishWords    = stopwords("the", "be", "to", "of", "and", "a", "in", "that", "have", "it")
)

func stopwords(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// DetectLanguage guesses "pt" or "en" from common function words in the first
// characters of text. It returns "" when neither language wins.
func DetectLanguage(text string) string {
	sample := strings.ToLower(utils.Truncate(text, languageRunes, ""))
	var pt, en int
	for _, w := range strings.Fields(sample) {
		if _, ok := portugueseWords[w]; ok {
			pt++
		}
		if _, ok := englishWords[w]; ok {
			en++
		}
	}
	switch {
	case pt > en:
		return "pt"
	case en > pt:
		return "en"
	}
	return ""
}

// Preview returns the first 500 characters of text.
func Preview(text string) string {
	return utils.Truncate(text, previewRunes, "")
}
