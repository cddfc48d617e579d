package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// slavicLetters are the Slovak and Czech accented letters treated as word
// characters by SlavicSplit.
const slavicLetters = "áčďéíľĺňóôŕšťúýžÁČĎÉÍĽĹŇÓÔŔŠŤÚÝŽ"

var (
	slavicPrefixes = []string{"pre", "nad", "pod", "pro", "pri", "za"}
	slavicSuffixes = []string{"ová", "ný", "ná", "né", "ích", "ami", "och"}
)

// slavicWordLimit is the longest word kept whole.
const slavicWordLimit = 3

var slavicPolicy = ChunkPolicy{Min: 2, Max: 4}

func isSlavicWord(r rune) bool {
	return isASCIIWord(r) || strings.ContainsRune(slavicLetters, r)
}

// SlavicSplit approximates a SentencePiece model trained on Slovak and Czech.
//
// Whitespace runs are kept whole, punctuation is split per character, and
// words longer than three letters lose one known prefix and one known
// suffix before being chunked. Letter case is preserved.
func SlavicSplit(text string) []string {
	var pieces []string
	for _, r := range splitRuns(text, isSlavicWord) {
		switch {
		case r.kind == runSpace:
			pieces = append(pieces, r.text)
		case r.kind == runPunct:
			pieces = append(pieces, splitChars(r.text)...)
		case utf8.RuneCountInString(r.text) <= slavicWordLimit:
			pieces = append(pieces, r.text)
		default:
			pieces = append(pieces, breakSlavic(r.text)...)
		}
	}
	return pieces
}

func breakSlavic(word string) []string {
	var out []string
	rest := []rune(word)

	for _, prefix := range slavicPrefixes {
		n := utf8.RuneCountInString(prefix)
		if len(rest) > n+2 && strings.EqualFold(string(rest[:n]), prefix) {
			out = append(out, string(rest[:n]))
			rest = rest[n:]
			break
		}
	}

	for _, suffix := range slavicSuffixes {
		n := utf8.RuneCountInString(suffix)
		if len(rest) > n+2 && strings.EqualFold(string(rest[len(rest)-n:]), suffix) {
			return append(out, string(rest[:len(rest)-n]), string(rest[len(rest)-n:]))
		}
	}

	return append(out, BreakIntoSubwords(string(rest), slavicPolicy)...)
}
