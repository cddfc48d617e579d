package logging

import (
	"github.com/rs/zerolog"

	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// Sink writes adapter events to a zerolog logger. Fallbacks and failed
// loads are logged at warn level, everything else at debug.
type Sink struct {
	logger zerolog.Logger
}

// NewSink returns a Sink that logs through logger.
func NewSink(logger zerolog.Logger) *Sink {
	return &Sink{logger: logger.With().Str("component", "tokenizer").Logger()}
}

// Event implements tokenizer.EventSink.
func (s *Sink) Event(e tokenizer.Event) {
	var ev *zerolog.Event
	switch {
	case e.Phase == tokenizer.PhaseFallback:
		ev = s.logger.Warn()
	case e.Err != nil:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Debug()
	}

	ev = ev.Str("phase", string(e.Phase)).Str("tokenizer", e.Tokenizer)
	switch e.Phase {
	case tokenizer.PhaseEncodeDone:
		ev = ev.Int("tokens", e.Tokens).Dur("elapsed", e.Elapsed)
	case tokenizer.PhaseLoadDone:
		ev = ev.Dur("elapsed", e.Elapsed)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}

	ev.Msg(message(e.Phase))
}

func message(p tokenizer.Phase) string {
	switch p {
	case tokenizer.PhaseLoadStart:
		return "loading back end"
	case tokenizer.PhaseLoadDone:
		return "back end loaded"
	case tokenizer.PhaseEncodeStart:
		return "encoding"
	case tokenizer.PhaseEncodeDone:
		return "encoded"
	case tokenizer.PhaseFallback:
		return "falling back to heuristic"
	default:
		return string(p)
	}
}
