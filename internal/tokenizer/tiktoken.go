package tokenizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// EncodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	EncodingCL100kBase = "cl100k_base"
	// EncodingR50kBase is the encoding name for older GPT-3 models.
	EncodingR50kBase = "r50k_base"
	// EncodingP50kBase is the encoding name for GPT-3 and Codex.
	EncodingP50kBase = "p50k_base"
	// EncodingO200kBase is the encoding name for GPT-4o.
	EncodingO200kBase = "o200k_base"
)

// bpeFallbackBase is the first id handed out by the fallback splitter of
// each encoding.
var bpeFallbackBase = map[string]int{
	EncodingCL100kBase: 50000,
	EncodingR50kBase:   10000,
	EncodingP50kBase:   25000,
	EncodingO200kBase:  100000,
}

// bpeFallbackChunk is the longest piece the fallback splitter emits.
const bpeFallbackChunk = 3

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// Supported encodings:
//   - cl100k_base: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci-002, babbage-002
//   - o200k_base: GPT-4o
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
//
// The encoding table is fetched (and cached on disk) by tiktoken-go, so this
// call may block on the network the first time.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     encodingName,
	}, nil
}

// Encode converts text to token IDs.
//
// tiktoken-go panics on some malformed inputs; the panic is returned as an error.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens, err := protect(func() []int { return t.encoding.Encode(text, nil, nil) })
	if err != nil {
		return nil, fmt.Errorf("failed to encode with %s: %w", t.name, err)
	}

	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}

	return result, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	intTokens := make([]int, len(tokens))
	for i, tok := range tokens {
		intTokens[i] = int(tok)
	}

	text, err := protect(func() string { return t.encoding.Decode(intTokens) })
	if err != nil {
		return "", fmt.Errorf("failed to decode with %s: %w", t.name, err)
	}
	return text, nil
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}

// EncodingLoader returns the back-end handle for a named BPE encoding.
type EncodingLoader func(name string) (Encoder, error)

func loadTikToken(name string) (Encoder, error) {
	tok, err := NewTikToken(name)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// BPETableAdapter tokenizes with a named byte-pair-encoding table.
//
// The encoder is loaded on the first call and cached for the adapter's
// lifetime. A load failure is remembered and every later call uses the
// whitespace chunking fallback.
type BPETableAdapter struct {
	encoding string
	load     EncodingLoader
	sink     EventSink

	mu      sync.Mutex
	encoder Encoder
	loadErr error
}

// NewBPETableAdapter creates an adapter for the named encoding. Nothing is
// loaded until Tokenize is called.
func NewBPETableAdapter(encoding string, opts ...Option) *BPETableAdapter {
	o := buildOptions(opts)
	return &BPETableAdapter{
		encoding: encoding,
		load:     o.encodingLoader,
		sink:     o.sink,
	}
}

// Name returns the encoding name.
func (a *BPETableAdapter) Name() string {
	return a.encoding
}

// Tokenize encodes text and decodes every id on its own to recover pieces.
func (a *BPETableAdapter) Tokenize(ctx context.Context, text string) Result {
	start := time.Now()

	enc, err := a.getEncoder(ctx)
	if err != nil {
		return a.fallback(text, start, err)
	}

	a.sink.Event(Event{Phase: PhaseEncodeStart, Tokenizer: a.encoding})
	pieces, ids, err := decodeEach(enc, text)
	if err != nil {
		return a.fallback(text, start, err)
	}

	res := assemble(pieces, sliceIDs(ids, a.fallbackBase()), start)
	a.sink.Event(Event{
		Phase:     PhaseEncodeDone,
		Tokenizer: a.encoding,
		Tokens:    res.TotalTokens,
		Elapsed:   time.Since(start),
	})
	return res
}

func (a *BPETableAdapter) getEncoder(ctx context.Context) (Encoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.encoder != nil {
		return a.encoder, nil
	}
	if a.loadErr != nil {
		return nil, a.loadErr
	}

	loadStart := time.Now()
	a.sink.Event(Event{Phase: PhaseLoadStart, Tokenizer: a.encoding})
	enc, err := safeLoad(a.load, a.encoding)
	a.sink.Event(Event{Phase: PhaseLoadDone, Tokenizer: a.encoding, Elapsed: time.Since(loadStart), Err: err})
	if err != nil {
		a.loadErr = err
		return nil, err
	}
	a.encoder = enc
	return enc, nil
}

func safeLoad(load EncodingLoader, name string) (enc Encoder, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to load encoding %q: %v", name, r)
		}
	}()
	return load(name)
}

// decodeEach encodes text and decodes each id individually.
func decodeEach(enc Encoder, text string) ([]string, []int, error) {
	ids32, err := enc.Encode(text)
	if err != nil {
		return nil, nil, err
	}

	pieces := make([]string, len(ids32))
	ids := make([]int, len(ids32))
	for i, id := range ids32 {
		piece, err := enc.Decode([]int32{id})
		if err != nil {
			return nil, nil, err
		}
		pieces[i] = piece
		ids[i] = int(id)
	}
	return pieces, ids, nil
}

func (a *BPETableAdapter) fallbackBase() int {
	if base, ok := bpeFallbackBase[a.encoding]; ok {
		return base
	}
	return bpeFallbackBase[EncodingR50kBase]
}

func (a *BPETableAdapter) fallback(text string, start time.Time, cause error) Result {
	a.sink.Event(Event{Phase: PhaseFallback, Tokenizer: a.encoding, Err: cause})
	return assemble(whitespaceChunks(text, bpeFallbackChunk), offsetIDs(a.fallbackBase()), start)
}
