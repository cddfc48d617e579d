package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// BPETokenizer implements Byte-Pair Encoding over a merge table.
//
// This is a pure Go implementation that can load HuggingFace tokenizer.json
// files. Whitespace runs are encoded as their own words, so the emitted
// pieces always concatenate back to the input.
type BPETokenizer struct {
	vocab    map[string]int32 // token -> ID
	ranks    map[pair]int     // merge -> priority, lower merges first
	unkToken int32
}

type pair struct {
	first  string
	second string
}

// NewBPETokenizer creates a new BPE tokenizer from vocab and merges.
func NewBPETokenizer(vocab map[string]int32, merges []pair) *BPETokenizer {
	ranks := make(map[pair]int, len(merges))
	for i, m := range merges {
		if _, ok := ranks[m]; !ok {
			ranks[m] = i
		}
	}

	return &BPETokenizer{
		vocab:    vocab,
		ranks:    ranks,
		unkToken: -1,
	}
}

// SetUnkToken configures the id emitted for pieces missing from the vocabulary.
func (b *BPETokenizer) SetUnkToken(unk int32) {
	b.unkToken = unk
}

// EncodePieces splits text into BPE pieces and looks up their ids.
//
// Pieces absent from the vocabulary get the unknown token id, or -1 when
// none is configured.
func (b *BPETokenizer) EncodePieces(text string) ([]string, []int, error) {
	var pieces []string
	var ids []int

	for _, word := range splitRuns(text, func(rune) bool { return true }) {
		for _, piece := range b.merge(word.text) {
			id, ok := b.vocab[piece]
			if !ok {
				id = b.unkToken
			}
			pieces = append(pieces, piece)
			ids = append(ids, int(id))
		}
	}

	return pieces, ids, nil
}

// merge applies merge rules to one word until no known pair remains.
func (b *BPETokenizer) merge(word string) []string {
	chars := splitChars(word)

	for len(chars) > 1 {
		bestIdx := -1
		bestRank := len(b.ranks) + 1

		for i := 0; i < len(chars)-1; i++ {
			if rank, ok := b.ranks[pair{chars[i], chars[i+1]}]; ok && rank < bestRank {
				bestIdx = i
				bestRank = rank
			}
		}

		if bestIdx == -1 {
			break
		}

		merged := make([]string, 0, len(chars)-1)
		merged = append(merged, chars[:bestIdx]...)
		merged = append(merged, chars[bestIdx]+chars[bestIdx+1])
		merged = append(merged, chars[bestIdx+2:]...)
		chars = merged
	}

	return chars
}

// VocabSize returns the total vocabulary size.
func (b *BPETokenizer) VocabSize() int {
	return len(b.vocab)
}

// HuggingFaceTokenizerConfig represents a subset of tokenizer.json structure.
type HuggingFaceTokenizerConfig struct {
	Model struct {
		Vocab  map[string]int `json:"vocab"`
		Merges []string       `json:"merges"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// LoadBPEFromHuggingFace loads a BPE tokenizer from tokenizer.json.
//
// This is a simplified loader that handles the most common HuggingFace format.
func LoadBPEFromHuggingFace(path string) (*BPETokenizer, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path comes from the vocabulary directory
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer.json: %w", err)
	}

	var config HuggingFaceTokenizerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}
	if len(config.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json has an empty vocabulary")
	}

	vocab := make(map[string]int32, len(config.Model.Vocab)+len(config.AddedTokens))
	for token, id := range config.Model.Vocab {
		vocab[token] = int32(id) //nolint:gosec // G115: integer overflow conversion int -> int32
	}

	var merges []pair
	for _, mergeStr := range config.Model.Merges {
		parts := strings.Fields(mergeStr)
		if len(parts) == 2 {
			merges = append(merges, pair{parts[0], parts[1]})
		}
	}

	tokenizer := NewBPETokenizer(vocab, merges)

	for _, addedToken := range config.AddedTokens {
		id := int32(addedToken.ID) //nolint:gosec // G115: integer overflow conversion int -> int32
		vocab[addedToken.Content] = id

		content := strings.ToLower(addedToken.Content)
		if addedToken.Special && strings.Contains(content, "unk") {
			tokenizer.unkToken = id
		}
	}

	return tokenizer, nil
}
