package tokenizer

import "time"

// Phase identifies a boundary in an adapter's lifecycle.
type Phase string

// Phases reported to an EventSink.
const (
	PhaseLoadStart   Phase = "load-start"
	PhaseLoadDone    Phase = "load-done"
	PhaseEncodeStart Phase = "encode-start"
	PhaseEncodeDone  Phase = "encode-done"
	PhaseFallback    Phase = "fallback"
)

// Event is a single observability record emitted by an adapter.
type Event struct {
	Phase     Phase
	Tokenizer string

	// Tokens is set on PhaseEncodeDone.
	Tokens int

	// Elapsed is set on PhaseLoadDone and PhaseEncodeDone.
	Elapsed time.Duration

	// Err carries the cause of a PhaseFallback or a failed load.
	Err error
}

// EventSink receives adapter events. Implementations must be safe for
// concurrent use; adapters call Event synchronously.
type EventSink interface {
	Event(e Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(e Event)

// Event calls f(e).
func (f EventSinkFunc) Event(e Event) {
	f(e)
}

type nopSink struct{}

func (nopSink) Event(Event) {}

// NopSink returns an EventSink that discards every event.
func NopSink() EventSink {
	return nopSink{}
}
