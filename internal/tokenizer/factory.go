package tokenizer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// IdentifierLlama3 selects the default pretrained-vocabulary family.
	IdentifierLlama3 = "llama3"
	// IdentifierCustom selects a SentencePiece model passed as CustomData.
	IdentifierCustom = "custom"
	// PreloadedPrefix selects a SentencePiece model registered with
	// WithPreloadedModels, as in "sp:<name>".
	PreloadedPrefix = "sp:"
)

var (
	// ErrUnknownTokenizer is returned for identifiers no adapter accepts.
	ErrUnknownTokenizer = errors.New("unknown tokenizer type")
	// ErrMissingModelData is returned for "custom" without CustomData.
	ErrMissingModelData = errors.New("custom tokenizer requires model data")
)

// Option configures adapters created by New.
type Option func(*options)

type options struct {
	sink            EventSink
	httpClient      *http.Client
	vocabDir        string
	preloaded       map[string]CustomData
	encodingLoader  EncodingLoader
	processorLoader ProcessorLoader
}

func buildOptions(opts []Option) options {
	o := options{
		sink:            NopSink(),
		httpClient:      http.DefaultClient,
		encodingLoader:  loadTikToken,
		processorLoader: loadSentencePiece,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEventSink reports adapter lifecycle events to sink.
func WithEventSink(sink EventSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithHTTPClient sets the client used to download SentencePiece models.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithVocabDir sets the directory searched for <identifier>/tokenizer.json.
func WithVocabDir(dir string) Option {
	return func(o *options) {
		o.vocabDir = dir
	}
}

// WithPreloadedModels registers SentencePiece models reachable as "sp:<name>".
func WithPreloadedModels(models ...CustomData) Option {
	return func(o *options) {
		if o.preloaded == nil {
			o.preloaded = make(map[string]CustomData, len(models))
		}
		for _, m := range models {
			o.preloaded[m.Name] = m
		}
	}
}

// WithEncodingLoader replaces the BPE encoding loader.
func WithEncodingLoader(load EncodingLoader) Option {
	return func(o *options) {
		if load != nil {
			o.encodingLoader = load
		}
	}
}

// WithProcessorLoader replaces the SentencePiece model parser.
func WithProcessorLoader(load ProcessorLoader) Option {
	return func(o *options) {
		if load != nil {
			o.processorLoader = load
		}
	}
}

// KnownIdentifiers lists the literal identifiers accepted by New.
func KnownIdentifiers() []string {
	return []string{
		EncodingCL100kBase,
		EncodingR50kBase,
		EncodingP50kBase,
		EncodingO200kBase,
		IdentifierLlama3,
		IdentifierCustom,
	}
}

// LooksLikeModel reports whether identifier resembles an organization/model
// path or names a known family.
func LooksLikeModel(identifier string) bool {
	if strings.Contains(identifier, "/") {
		return true
	}
	lower := strings.ToLower(identifier)
	for _, spec := range families {
		if strings.Contains(lower, string(spec.family)) {
			return true
		}
	}
	return false
}

// New returns a fresh adapter for identifier.
//
// No back end is loaded here; every adapter defers its loading to the first
// Tokenize call. Two calls never share an adapter, so callers that want to
// reuse a loaded back end must keep the returned value.
func New(identifier string, custom *CustomData, opts ...Option) (Adapter, error) {
	switch identifier {
	case EncodingCL100kBase, EncodingR50kBase, EncodingP50kBase, EncodingO200kBase:
		return NewBPETableAdapter(identifier, opts...), nil
	case IdentifierLlama3:
		return NewPretrainedAdapter(identifier, opts...), nil
	case IdentifierCustom:
		if custom == nil {
			return nil, ErrMissingModelData
		}
		return NewSentencePieceAdapter(*custom, opts...), nil
	}

	if name, ok := strings.CutPrefix(identifier, PreloadedPrefix); ok {
		data, found := buildOptions(opts).preloaded[name]
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTokenizer, identifier)
		}
		return NewSentencePieceAdapter(data, opts...), nil
	}

	if LooksLikeModel(identifier) {
		return NewPretrainedAdapter(identifier, opts...), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownTokenizer, identifier)
}
