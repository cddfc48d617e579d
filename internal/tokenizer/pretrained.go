package tokenizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// Family groups model identifiers that share one splitting strategy and id base.
type Family string

// Known families. Classification tries them in declaration order.
const (
	FamilyGemma    Family = "gemma"
	FamilyPhi      Family = "phi"
	FamilyDeepSeek Family = "deepseek"
	FamilyQwen     Family = "qwen"
	FamilyFalcon   Family = "falcon"
	FamilyLlama    Family = "llama"
	FamilyGPT      Family = "gpt"
	FamilyGeneric  Family = "generic"
)

type familySpec struct {
	family Family
	baseID int
	split  func(text string) []string
}

// families is ordered: the first substring match wins. The base ids follow
// the approximate vocabulary size of each family.
var families = []familySpec{
	{family: FamilyGemma, baseID: 106496, split: splitGemma},
	{family: FamilyPhi, baseID: 51200, split: splitPhi},
	{family: FamilyDeepSeek, baseID: 102400, split: splitDeepSeek},
	{family: FamilyQwen, baseID: 151936, split: splitQwen},
	{family: FamilyFalcon, baseID: 65024, split: Baseline},
	{family: FamilyLlama, baseID: 128256, split: splitLlama},
	{family: FamilyGPT, baseID: 50400, split: splitGPT},
}

var genericFamily = familySpec{family: FamilyGeneric, baseID: 32000, split: Baseline}

// Families returns every family in classification order, generic last.
func Families() []Family {
	out := make([]Family, 0, len(families)+1)
	for _, f := range families {
		out = append(out, f.family)
	}
	return append(out, FamilyGeneric)
}

// ClassifyFamily maps a model identifier to its family by ordered,
// case-insensitive substring match.
func ClassifyFamily(identifier string) Family {
	return lookupFamily(identifier).family
}

// BaseID returns the first id assigned to pieces of the family.
func (f Family) BaseID() int {
	for _, spec := range families {
		if spec.family == f {
			return spec.baseID
		}
	}
	return genericFamily.baseID
}

func lookupFamily(identifier string) familySpec {
	lower := strings.ToLower(identifier)
	for _, spec := range families {
		if strings.Contains(lower, string(spec.family)) {
			return spec
		}
	}
	return genericFamily
}

// PretrainedAdapter approximates the tokenizer of a named model family.
//
// When a tokenizer.json for the identifier exists under the vocabulary
// directory it is used as the real back end; otherwise, or when it cannot
// be loaded, the family's splitting heuristic is used.
type PretrainedAdapter struct {
	model     string
	spec      familySpec
	vocabPath string
	sink      EventSink

	mu     sync.Mutex
	loaded bool
	vocab  PieceEncoder
}

// NewPretrainedAdapter creates an adapter for the model identifier.
func NewPretrainedAdapter(model string, opts ...Option) *PretrainedAdapter {
	o := buildOptions(opts)
	return &PretrainedAdapter{
		model:     model,
		spec:      lookupFamily(model),
		vocabPath: vocabPath(o.vocabDir, model),
		sink:      o.sink,
	}
}

// Name returns the model identifier.
func (a *PretrainedAdapter) Name() string {
	return a.model
}

// Family returns the family the identifier was classified into.
func (a *PretrainedAdapter) Family() Family {
	return a.spec.family
}

// Tokenize splits text with the loaded vocabulary or the family heuristic.
func (a *PretrainedAdapter) Tokenize(_ context.Context, text string) Result {
	start := time.Now()
	vocab := a.getVocabulary()

	a.sink.Event(Event{Phase: PhaseEncodeStart, Tokenizer: a.model})

	var res Result
	if vocab != nil {
		pieces, ids, err := safeEncodePieces(vocab, text)
		if err == nil && len(pieces) == 0 && text != "" {
			err = fmt.Errorf("vocabulary produced no pieces for %d bytes of input", len(text))
		}
		if err == nil {
			res = assemble(pieces, sliceIDs(ids, a.spec.baseID), start)
		} else {
			a.sink.Event(Event{Phase: PhaseFallback, Tokenizer: a.model, Err: err})
			vocab = nil
		}
	}

	if vocab == nil {
		pieces, err := protect(func() []string { return a.spec.split(text) })
		if err != nil {
			a.sink.Event(Event{Phase: PhaseFallback, Tokenizer: a.model, Err: err})
			pieces = boundarySplit(text)
		}
		res = assemble(pieces, offsetIDs(a.spec.baseID), start)
	}

	a.sink.Event(Event{
		Phase:     PhaseEncodeDone,
		Tokenizer: a.model,
		Tokens:    res.TotalTokens,
		Elapsed:   time.Since(start),
	})
	return res
}

// getVocabulary loads the tokenizer.json once. A missing file is not an
// error; a broken one is reported as a fallback.
func (a *PretrainedAdapter) getVocabulary() PieceEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loaded {
		return a.vocab
	}
	a.loaded = true

	if a.vocabPath == "" || !fileExists(a.vocabPath) {
		return nil
	}

	loadStart := time.Now()
	a.sink.Event(Event{Phase: PhaseLoadStart, Tokenizer: a.model})
	vocab, _, err := LoadVocabulary(a.vocabPath)
	a.sink.Event(Event{Phase: PhaseLoadDone, Tokenizer: a.model, Elapsed: time.Since(loadStart), Err: err})
	if err != nil {
		a.sink.Event(Event{Phase: PhaseFallback, Tokenizer: a.model, Err: err})
		return nil
	}
	a.vocab = vocab
	return vocab
}

func safeEncodePieces(enc PieceEncoder, text string) (pieces []string, ids []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic: %v", r)
		}
	}()
	return enc.EncodePieces(text)
}

// splitWords keeps whitespace and punctuation runs whole; word runs longer
// than limit are chunked with p.
func splitWords(text string, limit int, p ChunkPolicy, isWord func(rune) bool) []string {
	var pieces []string
	for _, r := range splitRuns(text, isWord) {
		if r.kind == runWord && utf8.RuneCountInString(r.text) > limit {
			pieces = append(pieces, BreakIntoSubwords(r.text, p)...)
			continue
		}
		pieces = append(pieces, r.text)
	}
	return pieces
}

func notSpace(r rune) bool { return !unicode.IsSpace(r) }

// splitGemma separates only on whitespace and cuts aggressively.
func splitGemma(text string) []string {
	return splitWords(text, 4, PolicyAggressive, notSpace)
}

func splitPhi(text string) []string {
	return splitWords(text, 6, PolicyConservative, isASCIIWord)
}

func splitGPT(text string) []string {
	return splitWords(text, 4, PolicyGPT, isASCIIWord)
}

var llamaSpecialToken = regexp.MustCompile(`<\|[^|]+\|>`)

// splitLlama keeps <|...|> control tokens whole.
func splitLlama(text string) []string {
	return splitAround(text, llamaSpecialToken, func(special string) []string {
		return []string{special}
	}, func(plain string) []string {
		return splitWords(plain, 5, PolicyBalanced, isASCIIWord)
	})
}

var codeSpan = regexp.MustCompile("(?s)```.*?```|`[^`]+`")

// maxCodeSpan is the longest code span kept as a single piece.
const maxCodeSpan = 50

// splitDeepSeek keeps fenced and inline code together.
func splitDeepSeek(text string) []string {
	return splitAround(text, codeSpan, func(code string) []string {
		if utf8.RuneCountInString(code) <= maxCodeSpan {
			return []string{code}
		}
		return BreakIntoSubwords(code, PolicyMinimal)
	}, Baseline)
}

// isCJK matches the CJK Unified Ideographs block and Extension A.
func isCJK(r rune) bool {
	return (r >= 0x4e00 && r <= 0x9fff) || (r >= 0x3400 && r <= 0x4dbf)
}

// splitQwen emits every CJK ideograph on its own.
func splitQwen(text string) []string {
	var pieces []string
	isWord := func(r rune) bool { return isASCIIWord(r) || isCJK(r) }
	for _, r := range splitRuns(text, isWord) {
		if r.kind != runWord {
			pieces = append(pieces, r.text)
			continue
		}
		for _, seg := range splitRuns(r.text, isCJK) {
			switch {
			case seg.kind == runWord:
				pieces = append(pieces, splitChars(seg.text)...)
			case utf8.RuneCountInString(seg.text) > 5:
				pieces = append(pieces, BreakIntoSubwords(seg.text, PolicyBalanced)...)
			default:
				pieces = append(pieces, seg.text)
			}
		}
	}
	return pieces
}

// splitAround applies match to every occurrence of re and rest to the text
// between occurrences.
func splitAround(text string, re *regexp.Regexp, match, rest func(string) []string) []string {
	var pieces []string
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			pieces = append(pieces, rest(text[last:loc[0]])...)
		}
		pieces = append(pieces, match(text[loc[0]:loc[1]])...)
		last = loc[1]
	}
	if last < len(text) {
		pieces = append(pieces, rest(text[last:])...)
	}
	return pieces
}
