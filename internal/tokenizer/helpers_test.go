package tokenizer

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireWellFormed checks the invariants every Result must satisfy.
func requireWellFormed(t *testing.T, text string, res Result) {
	t.Helper()

	require.Equal(t, len(res.Tokens), res.TotalTokens, "TotalTokens must equal len(Tokens)")
	assert.GreaterOrEqual(t, res.Latency, int64(0))
	if text != "" {
		require.NotEmpty(t, res.Tokens, "non-empty input must yield tokens")
	}

	pos := 0
	for i, tok := range res.Tokens {
		assert.Equal(t, i, tok.Index, "indices must be contiguous")
		assert.Equal(t, utf8.RuneCountInString(tok.Piece), tok.End-tok.Start, "token %d: End-Start must match piece length", i)
		assert.Equal(t, len(tok.Piece), tok.Bytes, "token %d: byte count", i)
		assert.Equal(t, pos, tok.Start, "token %d: offsets must be a running sum", i)
		pos = tok.End
	}
}

func pieces(res Result) []string {
	out := make([]string, len(res.Tokens))
	for i, tok := range res.Tokens {
		out[i] = tok.Piece
	}
	return out
}

func joinPieces(res Result) string {
	return strings.Join(pieces(res), "")
}

// fakeEncoder assigns ids to whitespace and non-whitespace runs in order of
// first appearance.
type fakeEncoder struct {
	mu     sync.Mutex
	ids    map[string]int32
	pieces map[int32]string
	encErr error
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{ids: map[string]int32{}, pieces: map[int32]string{}}
}

func (f *fakeEncoder) Encode(text string) ([]int32, error) {
	if f.encErr != nil {
		return nil, f.encErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []int32
	for _, r := range splitRuns(text, func(rune) bool { return true }) {
		id, ok := f.ids[r.text]
		if !ok {
			id = int32(len(f.ids) + 1)
			f.ids[r.text] = id
			f.pieces[id] = r.text
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeEncoder) Decode(tokens []int32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sb strings.Builder
	for _, id := range tokens {
		piece, ok := f.pieces[id]
		if !ok {
			return "", errors.New("unknown id")
		}
		sb.WriteString(piece)
	}
	return sb.String(), nil
}

// fakeProcessor splits on whitespace boundaries and numbers pieces from 1.
// It panics when the text contains "boom".
type fakeProcessor struct{}

func (fakeProcessor) EncodePieces(text string) ([]string, []int, error) {
	if strings.Contains(text, "boom") {
		panic("processor exploded")
	}
	var ps []string
	var ids []int
	for i, r := range splitRuns(text, func(rune) bool { return true }) {
		ps = append(ps, r.text)
		ids = append(ids, i+1)
	}
	return ps, ids, nil
}

// recordingSink collects events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Event(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) phases() []Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Phase, len(s.events))
	for i, e := range s.events {
		out[i] = e.Phase
	}
	return out
}

func (s *recordingSink) count(p Phase) int {
	n := 0
	for _, got := range s.phases() {
		if got == p {
			n++
		}
	}
	return n
}
