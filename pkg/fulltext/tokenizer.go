// Package fulltext implements the Full-Text Index component (C): a BM25
// inverted index over tokenized content, with pluggable tokenizers for
// Latin-script and CJK text. Grounded on the BM25Encoder in
// liliang-cn-sqvect's pkg/semantic-router/sparse.go, including its
// k1=1.2/b=0.75 defaults and IDF formula.
package fulltext

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into index/query terms.
type Tokenizer interface {
	Tokenize(text string) []string
}

// TokenizerKind selects a Tokenizer by name, for configuration loaded
// from JSON/env.
type TokenizerKind string

const (
	TokenizerLatin TokenizerKind = "latin"
	TokenizerCJK   TokenizerKind = "cjk"
	TokenizerAuto  TokenizerKind = "auto"
)

// NewTokenizer builds the Tokenizer named by kind, applying stopWords and
// stemming (Latin-only; CJK text has no inflectional stemming here).
func NewTokenizer(kind TokenizerKind, stopWords map[string]bool, stemming bool) Tokenizer {
	switch kind {
	case TokenizerCJK:
		return &cjkTokenizer{}
	case TokenizerAuto:
		return &autoTokenizer{latin: &latinTokenizer{stopWords: stopWords, stemming: stemming}, cjk: &cjkTokenizer{}}
	default:
		return &latinTokenizer{stopWords: stopWords, stemming: stemming}
	}
}

// DefaultStopWords is a small English stop-word list, matching the scope
// of the stopword handling in sqvect's tokenize().
func DefaultStopWords() map[string]bool {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "of", "to",
		"in", "on", "at", "for", "with", "by", "is", "are", "was", "were",
		"be", "been", "being", "it", "its", "this", "that", "these", "those",
		"as", "from", "into", "about", "than", "so", "not", "no", "do", "does",
		"did", "has", "have", "had", "i", "you", "he", "she", "we", "they",
	}
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

type latinTokenizer struct {
	stopWords map[string]bool
	stemming  bool
}

func (t *latinTokenizer) Tokenize(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		word := strings.ToLower(cur.String())
		cur.Reset()
		if len(word) <= 1 {
			return
		}
		if t.stopWords != nil && t.stopWords[word] {
			return
		}
		if t.stemming {
			word = stemSuffix(word)
		}
		out = append(out, word)
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

// stemSuffix is a deliberately small suffix stripper, not a full Porter
// stemmer: it folds the handful of common inflectional endings that
// matter most for recall on short agent-memory snippets, without pulling
// in a stemming library the rest of the corpus never reaches for either.
func stemSuffix(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ing") && len(word) > 5:
		return word[:len(word)-3]
	case strings.HasSuffix(word, "ed") && len(word) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "es") && len(word) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 3:
		return word[:len(word)-1]
	default:
		return word
	}
}

// cjkTokenizer splits runs of CJK characters into overlapping bigrams,
// the standard fallback for scripts without whitespace word boundaries
// when no dedicated segmenter is available.
type cjkTokenizer struct{}

func (t *cjkTokenizer) Tokenize(text string) []string {
	runes := []rune(text)
	var out []string
	var run []rune
	flushRun := func() {
		if len(run) == 1 {
			out = append(out, string(run))
		} else {
			for i := 0; i+1 < len(run); i++ {
				out = append(out, string(run[i:i+2]))
			}
		}
		run = run[:0]
	}
	for _, r := range runes {
		if isCJK(r) {
			run = append(run, r)
		} else {
			flushRun()
		}
	}
	flushRun()
	return out
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// autoTokenizer dispatches each maximal script run to the Latin or CJK
// tokenizer, so mixed-language content indexes sensibly either way.
type autoTokenizer struct {
	latin *latinTokenizer
	cjk   *cjkTokenizer
}

func (t *autoTokenizer) Tokenize(text string) []string {
	var out []string
	var latinRun, cjkRun strings.Builder
	flush := func() {
		if latinRun.Len() > 0 {
			out = append(out, t.latin.Tokenize(latinRun.String())...)
			latinRun.Reset()
		}
		if cjkRun.Len() > 0 {
			out = append(out, t.cjk.Tokenize(cjkRun.String())...)
			cjkRun.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isCJK(r):
			if latinRun.Len() > 0 {
				out = append(out, t.latin.Tokenize(latinRun.String())...)
				latinRun.Reset()
			}
			cjkRun.WriteRune(r)
		default:
			if cjkRun.Len() > 0 {
				out = append(out, t.cjk.Tokenize(cjkRun.String())...)
				cjkRun.Reset()
			}
			latinRun.WriteRune(r)
		}
	}
	flush()
	return out
}
