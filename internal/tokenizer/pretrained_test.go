package tokenizer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFamily(t *testing.T) {
	tests := []struct {
		identifier string
		want       Family
	}{
		{identifier: "google/gemma-2b", want: FamilyGemma},
		{identifier: "microsoft/phi-2", want: FamilyPhi},
		{identifier: "deepseek-ai/deepseek-coder-6.7b", want: FamilyDeepSeek},
		{identifier: "Qwen/Qwen2-7B", want: FamilyQwen},
		{identifier: "tiiuae/falcon-7b", want: FamilyFalcon},
		{identifier: "meta-llama/Llama-3-8B", want: FamilyLlama},
		{identifier: "llama3", want: FamilyLlama},
		{identifier: "openai-community/gpt2", want: FamilyGPT},
		{identifier: "org/some-model", want: FamilyGeneric},
		{identifier: "", want: FamilyGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFamily(tt.identifier))
		})
	}
}

func TestClassifyFamily_FirstMatchWins(t *testing.T) {
	// Matches both gemma and llama; gemma is declared first.
	assert.Equal(t, FamilyGemma, ClassifyFamily("someone/gemma-llama-merge"))
}

func TestFamily_BaseID(t *testing.T) {
	want := map[Family]int{
		FamilyGemma:    106496,
		FamilyPhi:      51200,
		FamilyDeepSeek: 102400,
		FamilyQwen:     151936,
		FamilyFalcon:   65024,
		FamilyLlama:    128256,
		FamilyGPT:      50400,
		FamilyGeneric:  32000,
	}
	for family, base := range want {
		assert.Equal(t, base, family.BaseID(), family)
	}
	assert.Len(t, Families(), len(want))
	assert.Equal(t, FamilyGeneric, Families()[len(want)-1])
}

func TestPretrainedAdapter_FamilySplits(t *testing.T) {
	tests := []struct {
		name  string
		model string
		text  string
		want  []string
	}{
		{
			name:  "gemma splits on whitespace only",
			model: "google/gemma-2b",
			text:  "Hello, world!",
			want:  []string{"Hel", "lo,", " ", "wor", "ld!"},
		},
		{
			name:  "phi keeps words up to six runes",
			model: "microsoft/phi-2",
			text:  "Hello, world!",
			want:  []string{"Hello", ",", " ", "world", "!"},
		},
		{
			name:  "deepseek keeps inline code",
			model: "deepseek-ai/deepseek-coder",
			text:  "use `fmt.Println` here",
			want:  []string{"use", " ", "`fmt.Println`", " ", "here"},
		},
		{
			name:  "qwen emits ideographs one by one",
			model: "Qwen/Qwen2-7B",
			text:  "你好 world",
			want:  []string{"你", "好", " ", "world"},
		},
		{
			name:  "llama keeps control tokens",
			model: "llama3",
			text:  "<|begin_of_text|>Hello everyone",
			want:  []string{"<|begin_of_text|>", "Hello", " ", "ever", "yone"},
		},
		{
			name:  "gpt chunks long words",
			model: "openai-community/gpt2",
			text:  "tokenization",
			want:  []string{"toke", "niza", "tion"},
		},
		{
			name:  "generic uses the baseline",
			model: "org/some-model",
			text:  "Hello world",
			want:  []string{"He", "llo", " ", "wo", "rld"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewPretrainedAdapter(tt.model)
			res := adapter.Tokenize(context.Background(), tt.text)

			requireWellFormed(t, tt.text, res)
			assert.Equal(t, tt.want, pieces(res))

			base := adapter.Family().BaseID()
			for i, tok := range res.Tokens {
				assert.Equal(t, base+i, tok.ID)
			}
		})
	}
}

func TestPretrainedAdapter_LongCodeSpan(t *testing.T) {
	code := "`" + "abcdefghij_abcdefghij_abcdefghij_abcdefghij_abcdefghij" + "`"
	res := NewPretrainedAdapter("deepseek-coder").Tokenize(context.Background(), code)

	requireWellFormed(t, code, res)
	assert.Greater(t, res.TotalTokens, 1)
	assert.Equal(t, code, joinPieces(res))
	for _, tok := range res.Tokens {
		assert.LessOrEqual(t, tok.End-tok.Start, PolicyMinimal.Max)
	}
}

func TestPretrainedAdapter_EmptyText(t *testing.T) {
	res := NewPretrainedAdapter("llama3").Tokenize(context.Background(), "")
	assert.Empty(t, res.Tokens)
	assert.Equal(t, 0, res.TotalTokens)
}

func TestPretrainedAdapter_VocabularyFile(t *testing.T) {
	dir := t.TempDir()
	writeTokenizerJSON(t, filepath.Join(dir, "acme", "tiny-model"), map[string]interface{}{
		"model": map[string]interface{}{
			"type": "BPE",
			"vocab": map[string]int{
				"a":  0,
				"b":  1,
				"ab": 2,
			},
			"merges": []string{"a b"},
		},
		"added_tokens": []map[string]interface{}{},
	})

	sink := &recordingSink{}
	adapter := NewPretrainedAdapter("acme/tiny-model", WithVocabDir(dir), WithEventSink(sink))
	assert.Equal(t, FamilyGeneric, adapter.Family())

	res := adapter.Tokenize(context.Background(), "ab")
	requireWellFormed(t, "ab", res)

	adapter.Tokenize(context.Background(), "ab")
	assert.Equal(t, 1, sink.count(PhaseLoadStart), "the vocabulary is loaded once")
	assert.Equal(t, 1, sink.count(PhaseLoadDone))
}

func TestPretrainedAdapter_BrokenVocabularyFallsBack(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "google", "gemma-2b")
	require.NoError(t, os.MkdirAll(modelDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "tokenizer.json"), []byte("{broken"), 0o600))

	sink := &recordingSink{}
	adapter := NewPretrainedAdapter("google/gemma-2b", WithVocabDir(dir), WithEventSink(sink))

	res := adapter.Tokenize(context.Background(), "Hello, world!")
	requireWellFormed(t, "Hello, world!", res)
	assert.Equal(t, []string{"Hel", "lo,", " ", "wor", "ld!"}, pieces(res))
	assert.Equal(t, 106496, res.Tokens[0].ID)
	assert.Equal(t, 1, sink.count(PhaseFallback))
}

func TestPretrainedAdapter_MissingVocabularyIsSilent(t *testing.T) {
	sink := &recordingSink{}
	adapter := NewPretrainedAdapter("meta-llama/Llama-3-8B", WithVocabDir(t.TempDir()), WithEventSink(sink))

	adapter.Tokenize(context.Background(), "Hi")
	assert.Equal(t, []Phase{PhaseEncodeStart, PhaseEncodeDone}, sink.phases())
}

func TestPretrainedAdapter_Reconstructs(t *testing.T) {
	text := "Tokenizers differ: <|eot_id|> `code` 你好世界 and čučoriedka!\n"
	for _, family := range Families() {
		t.Run(string(family), func(t *testing.T) {
			res := NewPretrainedAdapter(string(family) + "-model").Tokenize(context.Background(), text)
			requireWellFormed(t, text, res)
			assert.Equal(t, text, joinPieces(res))
		})
	}
}
