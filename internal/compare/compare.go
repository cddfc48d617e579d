// Package compare runs the same text through several tokenizers side by side.
//
// A Comparator owns one adapter per panel slot and reuses it while the slot's
// tokenizer selection is unchanged, so back ends are loaded once per slot.
// Only one batch per input text runs at a time; a batch started while
// another batch for the same text is running is rejected rather than queued.
package compare

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// DefaultTimeout bounds a single panel's Tokenize call.
const DefaultTimeout = 10 * time.Second

// ErrBatchInFlight is returned by Compare while another batch for the same
// text is running.
var ErrBatchInFlight = errors.New("a comparison is already in progress")

// Panel selects the tokenizer of one comparison slot. An empty Tokenizer
// leaves the slot unused.
type Panel struct {
	Tokenizer string
	Custom    *tokenizer.CustomData
}

// PanelResult is the outcome of one slot.
type PanelResult struct {
	Tokenizer string           `json:"tokenizer"`
	Result    tokenizer.Result `json:"result"`

	// Loading is true only in updates sent before the slot finished.
	Loading bool `json:"loading"`

	// TimedOut is set when Tokenize did not return within the timeout.
	TimedOut bool `json:"timedOut"`

	// Error carries dispatch errors such as an unknown identifier.
	Error string `json:"error,omitempty"`
}

// Factory creates the adapter of a slot.
type Factory func(identifier string, custom *tokenizer.CustomData) (tokenizer.Adapter, error)

// Option configures a Comparator.
type Option func(*Comparator)

// WithTimeout sets the per-panel timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Comparator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFactory replaces the adapter factory.
func WithFactory(f Factory) Option {
	return func(c *Comparator) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithTokenizerOptions passes options to tokenizer.New for every slot.
func WithTokenizerOptions(opts ...tokenizer.Option) Option {
	return func(c *Comparator) {
		c.factory = func(identifier string, custom *tokenizer.CustomData) (tokenizer.Adapter, error) {
			return tokenizer.New(identifier, custom, opts...)
		}
	}
}

// WithUpdates registers fn to observe slot progress. It is called with
// Loading set when a slot starts and again with the final result.
// Calls for different slots may be concurrent.
func WithUpdates(fn func(slot int, r PanelResult)) Option {
	return func(c *Comparator) {
		c.onUpdate = fn
	}
}

type slot struct {
	key     string
	adapter tokenizer.Adapter
}

// Comparator fans text out to per-slot adapters.
type Comparator struct {
	factory  Factory
	timeout  time.Duration
	onUpdate func(int, PanelResult)

	// inFlight holds the texts of running batches.
	inFlight sync.Map

	mu    sync.Mutex
	slots []slot
}

// New returns a Comparator using tokenizer.New and DefaultTimeout unless
// overridden by opts.
func New(opts ...Option) *Comparator {
	c := &Comparator{
		factory: func(identifier string, custom *tokenizer.CustomData) (tokenizer.Adapter, error) {
			return tokenizer.New(identifier, custom)
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-panel timeout.
func (c *Comparator) Timeout() time.Duration {
	return c.timeout
}

// Compare tokenizes text with every panel concurrently and returns one
// result per panel, in panel order. Panel failures are reported in the
// results; the only error is ErrBatchInFlight.
func (c *Comparator) Compare(ctx context.Context, text string, panels []Panel) ([]PanelResult, error) {
	if _, running := c.inFlight.LoadOrStore(text, struct{}{}); running {
		return nil, ErrBatchInFlight
	}
	defer c.inFlight.Delete(text)

	results := make([]PanelResult, len(panels))
	var g errgroup.Group
	for i, p := range panels {
		g.Go(func() error {
			results[i] = c.run(ctx, i, p, text)
			c.notify(i, results[i])
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Busy reports whether any batch is running.
func (c *Comparator) Busy() bool {
	busy := false
	c.inFlight.Range(func(_, _ any) bool {
		busy = true
		return false
	})
	return busy
}

func (c *Comparator) run(ctx context.Context, i int, p Panel, text string) PanelResult {
	out := PanelResult{Tokenizer: p.Tokenizer, Result: emptyResult()}
	if p.Tokenizer == "" {
		return out
	}

	adapter, err := c.adapter(i, p)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	c.notify(i, PanelResult{Tokenizer: p.Tokenizer, Result: emptyResult(), Loading: true})

	res, err := Run(ctx, adapter, text, c.timeout)
	switch {
	case err == nil:
		out.Result = res
	case errors.Is(err, context.DeadlineExceeded):
		out.TimedOut = true
	default:
		out.Error = err.Error()
	}
	return out
}

// Run calls adapter.Tokenize bounded by timeout. When the deadline passes
// or ctx is cancelled first, it returns the context error and leaves the
// call running in the background. The abandoned call is not cancelled, so
// a slow model load still completes for the next call.
func Run(ctx context.Context, adapter tokenizer.Adapter, text string, timeout time.Duration) (tokenizer.Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx := context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned call can still deliver and exit.
	done := make(chan tokenizer.Result, 1)
	go func() {
		done <- adapter.Tokenize(callCtx, text)
	}()

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return emptyResult(), ctx.Err()
	}
}

// adapter returns the slot's adapter, creating a new one when the slot's
// selection changed.
func (c *Comparator) adapter(i int, p Panel) (tokenizer.Adapter, error) {
	key := slotKey(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.slots) <= i {
		c.slots = append(c.slots, slot{})
	}
	if s := c.slots[i]; s.adapter != nil && s.key == key {
		return s.adapter, nil
	}

	adapter, err := c.factory(p.Tokenizer, p.Custom)
	if err != nil {
		c.slots[i] = slot{}
		return nil, fmt.Errorf("failed to create tokenizer %q: %w", p.Tokenizer, err)
	}
	c.slots[i] = slot{key: key, adapter: adapter}
	return adapter, nil
}

// Reset drops every cached adapter.
func (c *Comparator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = nil
}

func (c *Comparator) notify(i int, r PanelResult) {
	if c.onUpdate != nil {
		c.onUpdate(i, r)
	}
}

func slotKey(p Panel) string {
	if p.Custom == nil {
		return p.Tokenizer
	}
	sum := sha256.Sum256(p.Custom.ModelFile)
	return fmt.Sprintf("%s\x00%s\x00%s\x00%x", p.Tokenizer, p.Custom.Name, p.Custom.ModelURL, sum[:8])
}

func emptyResult() tokenizer.Result {
	return tokenizer.Result{Tokens: []tokenizer.Token{}}
}
