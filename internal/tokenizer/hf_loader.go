package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sugar "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizerType identifies the tokenizer implementation type.
type HFTokenizerType string

const (
	// HFTypeBPE indicates Byte-Pair Encoding tokenizer.
	HFTypeBPE HFTokenizerType = "BPE"

	// HFTypeWordPiece indicates WordPiece tokenizer (BERT-style).
	HFTypeWordPiece HFTokenizerType = "WordPiece"

	// HFTypeUnigram indicates Unigram tokenizer (SentencePiece-style).
	HFTypeUnigram HFTokenizerType = "Unigram"

	// HFTypeUnknown indicates an unknown or unsupported tokenizer type.
	HFTypeUnknown HFTokenizerType = "Unknown"
)

// vocabFileName is the file looked up for every pretrained identifier.
const vocabFileName = "tokenizer.json"

// HFTokenizerMetadata contains metadata from tokenizer.json.
type HFTokenizerMetadata struct {
	Type          HFTokenizerType
	VocabSize     int
	HasBOS        bool
	HasEOS        bool
	HasPAD        bool
	HasUNK        bool
	TokenizerType string
}

// PieceEncoder is a loaded vocabulary or model that yields pieces together
// with their ids in a single pass.
type PieceEncoder interface {
	EncodePieces(text string) ([]string, []int, error)
}

// DetectHFTokenizerType determines the tokenizer type from tokenizer.json.
//
//nolint:gocognit // JSON parsing requires nested type assertions for complex structures.
func DetectHFTokenizerType(path string) (*HFTokenizerMetadata, error) {
	//nolint:gosec // Loading tokenizer from the configured vocabulary directory is intentional.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer.json: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}

	metadata := &HFTokenizerMetadata{
		Type: HFTypeUnknown,
	}

	if model, ok := raw["model"].(map[string]interface{}); ok {
		if tokType, ok := model["type"].(string); ok {
			metadata.TokenizerType = tokType
			switch tokType {
			case "BPE":
				metadata.Type = HFTypeBPE
			case "WordPiece":
				metadata.Type = HFTypeWordPiece
			case "Unigram":
				metadata.Type = HFTypeUnigram
			}
		}

		// Unigram stores its vocabulary as a list of [piece, score] pairs.
		switch vocab := model["vocab"].(type) {
		case map[string]interface{}:
			metadata.VocabSize = len(vocab)
		case []interface{}:
			metadata.VocabSize = len(vocab)
		}
	}

	if addedTokens, ok := raw["added_tokens"].([]interface{}); ok {
		for _, tokenRaw := range addedTokens {
			token, ok := tokenRaw.(map[string]interface{})
			if !ok {
				continue
			}
			content, _ := token["content"].(string)
			switch content {
			case "<s>", "<bos>", "[CLS]", "<|begin_of_text|>":
				metadata.HasBOS = true
			case "</s>", "<eos>", "[SEP]", "<|end_of_text|>", "<|endoftext|>":
				metadata.HasEOS = true
			case "<pad>", "[PAD]":
				metadata.HasPAD = true
			case "<unk>", "[UNK]":
				metadata.HasUNK = true
			}
		}
	}

	return metadata, nil
}

// LoadVocabulary loads a tokenizer.json as a PieceEncoder.
//
// It tries multiple strategies:
//  1. The full HuggingFace pipeline via sugarme/tokenizer (normalizers,
//     pre-tokenizers, any model type).
//  2. For BPE files, the pure Go merge-table tokenizer.
func LoadVocabulary(path string) (PieceEncoder, *HFTokenizerMetadata, error) {
	metadata, err := DetectHFTokenizerType(path)
	if err != nil {
		return nil, nil, err
	}
	if metadata.Type == HFTypeUnknown {
		return nil, metadata, fmt.Errorf("unknown tokenizer type: %s", metadata.TokenizerType)
	}

	tk, err := loadPretrained(path)
	if err == nil {
		return &hfVocabulary{tk: tk}, metadata, nil
	}

	if metadata.Type == HFTypeBPE {
		bpe, bpeErr := LoadBPEFromHuggingFace(path)
		if bpeErr == nil {
			return bpe, metadata, nil
		}
	}

	return nil, metadata, fmt.Errorf("failed to load vocabulary %s: %w", path, err)
}

func loadPretrained(path string) (tk *sugar.Tokenizer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tokenizer.json rejected: %v", r)
		}
	}()
	return pretrained.FromFile(path)
}

// hfVocabulary adapts a sugarme tokenizer to PieceEncoder.
type hfVocabulary struct {
	tk *sugar.Tokenizer
}

func (h *hfVocabulary) EncodePieces(text string) ([]string, []int, error) {
	enc, err := h.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode: %w", err)
	}
	return enc.Tokens, enc.Ids, nil
}

// vocabPath maps a model identifier such as "org/model" to
// <dir>/org/model/tokenizer.json. Identifiers that would escape dir yield "".
func vocabPath(dir, identifier string) string {
	if dir == "" || identifier == "" {
		return ""
	}
	for _, part := range strings.Split(identifier, "/") {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `\:`) {
			return ""
		}
	}
	return filepath.Join(dir, filepath.FromSlash(identifier), vocabFileName)
}
