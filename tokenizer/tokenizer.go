// Package tokenizer compares how different tokenizers split the same text.
//
// This package wraps the internal adapter implementations and provides a
// clean public API. Every adapter returns the same Result shape, so outputs
// of unrelated back ends can be displayed side by side.
//
// Supported identifiers:
//   - "cl100k_base", "r50k_base", "p50k_base", "o200k_base": tiktoken BPE tables
//   - "llama3" and "org/model" paths: pretrained vocabularies by model family
//   - "custom": a SentencePiece model passed as CustomData
//   - "sp:<name>": a SentencePiece model registered with WithPreloadedModels
//
// Example usage:
//
//	import "github.com/born-ml/tokcompare/tokenizer"
//
//	adapter, err := tokenizer.New("cl100k_base", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res := adapter.Tokenize(ctx, "Hello, world!")
//	fmt.Println(res.TotalTokens, res.Latency)
package tokenizer

import (
	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// Token is one emitted unit of a tokenization.
type Token = tokenizer.Token

// Result is the outcome of a single Tokenize call.
type Result = tokenizer.Result

// Adapter is the uniform contract implemented by every back end.
//
// Tokenize never fails: load and encode errors are absorbed and a heuristic
// result is returned instead.
type Adapter = tokenizer.Adapter

// CustomData describes a user supplied SentencePiece model.
type CustomData = tokenizer.CustomData

// Option configures adapters created by New.
type Option = tokenizer.Option

// Family is a pretrained model family.
type Family = tokenizer.Family

// Event reports one step of an adapter's lifecycle.
type Event = tokenizer.Event

// EventSink receives adapter events.
type EventSink = tokenizer.EventSink

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc = tokenizer.EventSinkFunc

// Identifiers accepted by New.
const (
	EncodingCL100kBase = tokenizer.EncodingCL100kBase
	EncodingR50kBase   = tokenizer.EncodingR50kBase
	EncodingP50kBase   = tokenizer.EncodingP50kBase
	EncodingO200kBase  = tokenizer.EncodingO200kBase
	IdentifierLlama3   = tokenizer.IdentifierLlama3
	IdentifierCustom   = tokenizer.IdentifierCustom
	PreloadedPrefix    = tokenizer.PreloadedPrefix
)

// Dispatch errors returned by New.
var (
	ErrUnknownTokenizer = tokenizer.ErrUnknownTokenizer
	ErrMissingModelData = tokenizer.ErrMissingModelData
)

// New returns a fresh adapter for identifier. Nothing is loaded until the
// first Tokenize call.
func New(identifier string, custom *CustomData, opts ...Option) (Adapter, error) {
	return tokenizer.New(identifier, custom, opts...)
}

// KnownIdentifiers lists the literal identifiers accepted by New.
func KnownIdentifiers() []string {
	return tokenizer.KnownIdentifiers()
}

// Families lists the pretrained model families.
func Families() []Family {
	return tokenizer.Families()
}

// ClassifyFamily returns the family a model identifier belongs to.
func ClassifyFamily(identifier string) Family {
	return tokenizer.ClassifyFamily(identifier)
}

// WithEventSink reports adapter events to sink.
func WithEventSink(sink EventSink) Option {
	return tokenizer.WithEventSink(sink)
}

// WithVocabDir sets the directory searched for <model>/tokenizer.json.
func WithVocabDir(dir string) Option {
	return tokenizer.WithVocabDir(dir)
}

// WithPreloadedModels registers SentencePiece models reachable as "sp:<name>".
func WithPreloadedModels(models ...CustomData) Option {
	return tokenizer.WithPreloadedModels(models...)
}
