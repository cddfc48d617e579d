package tokenizer

import (
	"context"
	"time"
	"unicode/utf8"
)

// Token is one emitted unit of a tokenization.
type Token struct {
	// Index is the 0-based position in the output sequence.
	Index int `json:"index"`

	// ID is the identifier in the back end's numbering space.
	// Ranges are back-end specific and may overlap across back ends.
	ID int `json:"id"`

	// Piece is the literal (or reconstructed) substring this token represents.
	Piece string `json:"piece"`

	// Start and End are half-open character offsets into the input.
	// End-Start always equals the rune length of Piece.
	Start int `json:"start"`
	End   int `json:"end"`

	// Bytes is the UTF-8 encoded length of Piece.
	Bytes int `json:"bytes"`
}

// Result is the outcome of a single Tokenize call.
type Result struct {
	Tokens      []Token `json:"tokens"`
	TotalTokens int     `json:"totalTokens"`

	// Latency is the wall-clock duration of the call in whole milliseconds.
	Latency int64 `json:"latency"`
}

// Adapter is the uniform contract implemented by every tokenization back end.
//
// Tokenize never fails: back-end load and encode errors are absorbed and a
// best-effort heuristic result is returned instead. The context bounds the
// blocking parts of the call (model download, encoding table fetch).
type Adapter interface {
	Tokenize(ctx context.Context, text string) Result

	// Name returns the identifier the adapter was created for.
	Name() string
}

// CustomData describes a user supplied SentencePiece model.
//
// Exactly one of ModelFile and ModelURL is expected to be set.
type CustomData struct {
	Name      string `json:"name"`
	ModelFile []byte `json:"-"`
	ModelURL  string `json:"modelUrl,omitempty"`
}

// Encoder is the minimal contract of a loaded back-end handle that turns
// text into ids and single ids back into text.
type Encoder interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)
}

// assemble turns a sequence of pieces into a Result. Offsets are a running
// sum of piece rune lengths, so End-Start matches the piece by construction
// even when a back end normalizes characters.
func assemble(pieces []string, id func(i int) int, start time.Time) Result {
	tokens := make([]Token, 0, len(pieces))
	pos := 0
	for i, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		tokens = append(tokens, Token{
			Index: i,
			ID:    id(i),
			Piece: piece,
			Start: pos,
			End:   pos + n,
			Bytes: len(piece),
		})
		pos += n
	}

	return Result{
		Tokens:      tokens,
		TotalTokens: len(tokens),
		Latency:     latencyMillis(start),
	}
}

// offsetIDs returns an id function numbering pieces from base.
func offsetIDs(base int) func(int) int {
	return func(i int) int { return base + i }
}

// sliceIDs returns an id function reading from ids, falling back to base+i
// when the back end produced fewer ids than pieces.
func sliceIDs(ids []int, base int) func(int) int {
	return func(i int) int {
		if i < len(ids) {
			return ids[i]
		}
		return base + i
	}
}

func latencyMillis(start time.Time) int64 {
	ms := time.Since(start).Round(time.Millisecond).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
