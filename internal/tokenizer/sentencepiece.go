package tokenizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eliben/go-sentencepiece"
)

// State is the lifecycle state of a SentencePieceAdapter.
type State int32

// SentencePiece adapter states.
const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	// degradedBaseID numbers pieces of the heuristic used after a load failure.
	degradedBaseID = 32000
	// customBaseID numbers pieces of the last-resort splitter.
	customBaseID = 200000
	// maxModelSize bounds a downloaded model.
	maxModelSize = 64 << 20
)

// ErrNoModelSource is the load error of a CustomData without file or URL.
var ErrNoModelSource = errors.New("no model file or URL provided")

// ErrModelTooLarge is the load error of a downloaded model over 64 MiB.
var ErrModelTooLarge = errors.New("model too large")

// ProcessorLoader parses a serialized SentencePiece model.
type ProcessorLoader func(model []byte) (PieceEncoder, error)

func loadSentencePiece(model []byte) (PieceEncoder, error) {
	proc, err := sentencepiece.NewProcessor(bytes.NewReader(model))
	if err != nil {
		return nil, fmt.Errorf("failed to parse sentencepiece model: %w", err)
	}
	return &spProcessor{proc: proc}, nil
}

// spProcessor adapts go-sentencepiece to PieceEncoder.
type spProcessor struct {
	proc *sentencepiece.Processor
}

func (p *spProcessor) EncodePieces(text string) ([]string, []int, error) {
	tokens := p.proc.Encode(text)
	pieces := make([]string, len(tokens))
	ids := make([]int, len(tokens))
	for i, t := range tokens {
		pieces[i] = t.Text
		ids[i] = t.ID
	}
	return pieces, ids, nil
}

// SentencePieceAdapter tokenizes with a user supplied SentencePiece model.
//
// The model is loaded once, on the first call. A failed load moves the
// adapter to StateDegraded for the rest of its lifetime, unless the load
// was interrupted by its context; a failed encode only affects the call it
// happened in.
type SentencePieceAdapter struct {
	data     CustomData
	client   *http.Client
	parse    ProcessorLoader
	sink     EventSink
	maxModel int64

	state atomic.Int32

	mu   sync.Mutex
	proc PieceEncoder
}

// NewSentencePieceAdapter creates an adapter for data. Nothing is loaded
// until Tokenize is called.
func NewSentencePieceAdapter(data CustomData, opts ...Option) *SentencePieceAdapter {
	o := buildOptions(opts)
	return &SentencePieceAdapter{
		data:     data,
		client:   o.httpClient,
		parse:    o.processorLoader,
		sink:     o.sink,
		maxModel: maxModelSize,
	}
}

// Name returns the model name.
func (a *SentencePieceAdapter) Name() string {
	if a.data.Name == "" {
		return IdentifierCustom
	}
	return a.data.Name
}

// State reports the current lifecycle state without blocking.
func (a *SentencePieceAdapter) State() State {
	return State(a.state.Load())
}

// Tokenize encodes text with the model, or with the Slovak/Czech heuristic
// when the model could not be loaded.
func (a *SentencePieceAdapter) Tokenize(ctx context.Context, text string) Result {
	start := time.Now()
	proc := a.ensureLoaded(ctx)

	a.sink.Event(Event{Phase: PhaseEncodeStart, Tokenizer: a.Name()})

	var res Result
	if proc == nil {
		pieces, err := protect(func() []string { return SlavicSplit(text) })
		if err != nil {
			return a.lastResort(text, start, err)
		}
		res = assemble(pieces, offsetIDs(degradedBaseID), start)
	} else {
		pieces, ids, err := safeEncodePieces(proc, text)
		if err != nil {
			return a.lastResort(text, start, err)
		}
		res = assemble(pieces, sliceIDs(ids, customBaseID), start)
	}

	a.sink.Event(Event{
		Phase:     PhaseEncodeDone,
		Tokenizer: a.Name(),
		Tokens:    res.TotalTokens,
		Elapsed:   time.Since(start),
	})
	return res
}

// ensureLoaded performs the one-time Unloaded -> Loading -> Ready|Degraded
// transition and returns the processor, or nil when degraded.
func (a *SentencePieceAdapter) ensureLoaded(ctx context.Context) PieceEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.State() {
	case StateReady:
		return a.proc
	case StateDegraded:
		return nil
	}

	a.state.Store(int32(StateLoading))
	loadStart := time.Now()
	a.sink.Event(Event{Phase: PhaseLoadStart, Tokenizer: a.Name()})

	proc, err := a.load(ctx)
	a.sink.Event(Event{Phase: PhaseLoadDone, Tokenizer: a.Name(), Elapsed: time.Since(loadStart), Err: err})
	if err != nil {
		a.sink.Event(Event{Phase: PhaseFallback, Tokenizer: a.Name(), Err: err})
		if ctx.Err() != nil {
			// Interrupted loads are retried by the next call.
			a.state.Store(int32(StateUnloaded))
			return nil
		}
		a.state.Store(int32(StateDegraded))
		return nil
	}

	a.proc = proc
	a.state.Store(int32(StateReady))
	return proc
}

func (a *SentencePieceAdapter) load(ctx context.Context) (proc PieceEncoder, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to load sentencepiece model: %v", r)
		}
	}()

	model, err := a.modelBytes(ctx)
	if err != nil {
		return nil, err
	}
	return a.parse(model)
}

// modelBytes returns the uploaded model or fetches it from ModelURL. A URL
// without a scheme is read from the local filesystem.
func (a *SentencePieceAdapter) modelBytes(ctx context.Context) ([]byte, error) {
	switch {
	case len(a.data.ModelFile) > 0:
		return a.data.ModelFile, nil
	case a.data.ModelURL == "":
		return nil, ErrNoModelSource
	}

	u, err := url.Parse(a.data.ModelURL)
	if err != nil || u.Scheme == "" {
		//nolint:gosec // G304: Model locations come from configuration or the caller.
		data, readErr := os.ReadFile(a.data.ModelURL)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read model: %w", readErr)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.data.ModelURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch model: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxModel+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read model body: %w", err)
	}
	if int64(len(data)) > a.maxModel {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrModelTooLarge, a.maxModel)
	}
	return data, nil
}

// lastResort splits on whitespace and punctuation and numbers pieces in the
// custom id range.
func (a *SentencePieceAdapter) lastResort(text string, start time.Time, cause error) Result {
	a.sink.Event(Event{Phase: PhaseFallback, Tokenizer: a.Name(), Err: cause})
	return assemble(boundarySplit(text), offsetIDs(customBaseID), start)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
