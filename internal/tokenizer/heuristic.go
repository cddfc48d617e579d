package tokenizer

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ChunkPolicy bounds the size of subword chunks cut from a long word.
type ChunkPolicy struct {
	Min int
	Max int
}

// Chunk policies used by the simulated families.
var (
	PolicyAggressive   = ChunkPolicy{Min: 2, Max: 3}
	PolicyConservative = ChunkPolicy{Min: 3, Max: 5}
	PolicyBalanced     = ChunkPolicy{Min: 3, Max: 4}
	PolicyMinimal      = ChunkPolicy{Min: 4, Max: 6}
	PolicyGPT          = ChunkPolicy{Min: 2, Max: 4}
)

// baselineWordLimit is the longest word the baseline keeps whole.
const baselineWordLimit = 4

// BreakIntoSubwords splits word into chunks following p.
//
// While more than p.Max runes remain, a chunk of
// clamp(remaining/2, p.Min, p.Max) runes is cut from the front; the rest is
// emitted whole. The remainder shrinks on every iteration, so the loop
// terminates, and a non-empty word always yields at least one piece.
func BreakIntoSubwords(word string, p ChunkPolicy) []string {
	if word == "" {
		return nil
	}
	minChunk, maxChunk := p.Min, p.Max
	if minChunk < 1 {
		minChunk = 1
	}
	if maxChunk < minChunk {
		maxChunk = minChunk
	}

	runes := []rune(word)
	var out []string
	for len(runes) > maxChunk {
		size := min(maxChunk, max(minChunk, len(runes)/2))
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

type runKind int

const (
	runSpace runKind = iota
	runWord
	runPunct
)

type run struct {
	kind runKind
	text string
}

// isASCIIWord matches the classic \w class: ASCII letters, digits and underscore.
func isASCIIWord(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func classify(r rune, isWord func(rune) bool) runKind {
	switch {
	case unicode.IsSpace(r):
		return runSpace
	case isWord(r):
		return runWord
	default:
		return runPunct
	}
}

// splitRuns partitions text into maximal runs of whitespace, word characters
// and everything else. Concatenating the runs yields text.
func splitRuns(text string, isWord func(rune) bool) []run {
	var runs []run
	start := 0
	var cur runKind
	for i, r := range text {
		k := classify(r, isWord)
		if i == 0 {
			cur = k
			continue
		}
		if k != cur {
			runs = append(runs, run{kind: cur, text: text[start:i]})
			start = i
			cur = k
		}
	}
	if start < len(text) {
		runs = append(runs, run{kind: cur, text: text[start:]})
	}
	return runs
}

func splitChars(s string) []string {
	out := make([]string, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Baseline is the lowest-tier heuristic shared by every adapter.
//
// Whitespace runs are kept whole, punctuation runs are split into single
// characters, words of up to four runes are kept whole and longer words are
// chunked with PolicyGPT. It never panics and returns at least one piece for
// non-empty input.
func Baseline(text string) []string {
	var pieces []string
	for _, r := range splitRuns(text, isASCIIWord) {
		switch r.kind {
		case runSpace:
			pieces = append(pieces, r.text)
		case runPunct:
			pieces = append(pieces, splitChars(r.text)...)
		case runWord:
			if utf8.RuneCountInString(r.text) <= baselineWordLimit {
				pieces = append(pieces, r.text)
			} else {
				pieces = append(pieces, BreakIntoSubwords(r.text, PolicyGPT)...)
			}
		}
	}
	return pieces
}

// boundarySplit keeps whitespace and word runs whole and emits every other
// character on its own. It is the last resort of the pretrained and
// SentencePiece adapters.
func boundarySplit(text string) []string {
	var pieces []string
	for _, r := range splitRuns(text, isASCIIWord) {
		if r.kind == runPunct {
			pieces = append(pieces, splitChars(r.text)...)
			continue
		}
		pieces = append(pieces, r.text)
	}
	return pieces
}

// whitespaceChunks keeps whitespace runs whole and cuts everything else into
// groups of at most size runes.
func whitespaceChunks(text string, size int) []string {
	if size < 1 {
		size = 1
	}
	var pieces []string
	for _, r := range splitRuns(text, func(rune) bool { return true }) {
		if r.kind == runSpace {
			pieces = append(pieces, r.text)
			continue
		}
		runes := []rune(r.text)
		for len(runes) > 0 {
			n := min(size, len(runes))
			pieces = append(pieces, string(runes[:n]))
			runes = runes[n:]
		}
	}
	return pieces
}

// protect runs split and converts a panic into an error so a misbehaving
// strategy or library can be replaced by a fallback.
func protect[T any](split func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic: %v", r)
		}
	}()
	return split(), nil
}
