// Package format renders tokens in the export formats offered to users.
package format

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// Kind names an export format.
type Kind string

// Supported export formats.
const (
	KindIDs    Kind = "ids"
	KindPieces Kind = "pieces"
	KindJSON   Kind = "json"
	KindCSV    Kind = "csv"
)

// Kinds lists the supported formats.
func Kinds() []Kind {
	return []Kind{KindIDs, KindPieces, KindJSON, KindCSV}
}

// ParseKind validates a format name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Render formats tokens as kind.
func Render(kind Kind, tokens []tokenizer.Token) (string, error) {
	switch kind {
	case KindIDs:
		return IDs(tokens, " "), nil
	case KindPieces:
		return Pieces(tokens)
	case KindJSON:
		return JSON(tokens)
	case KindCSV:
		return CSV(tokens), nil
	default:
		return "", fmt.Errorf("unknown export format %q", kind)
	}
}

// ContentType returns the MIME type of kind.
func ContentType(kind Kind) string {
	switch kind {
	case KindPieces, KindJSON:
		return "application/json; charset=utf-8"
	case KindCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// IDs joins token ids with sep.
func IDs(tokens []tokenizer.Token, sep string) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = strconv.Itoa(t.ID)
	}
	return strings.Join(parts, sep)
}

// Pieces encodes the token pieces as a compact JSON array.
func Pieces(tokens []tokenizer.Token) (string, error) {
	pieces := make([]string, len(tokens))
	for i, t := range tokens {
		pieces[i] = t.Piece
	}
	data, err := marshal(pieces, "")
	if err != nil {
		return "", fmt.Errorf("failed to encode pieces: %w", err)
	}
	return data, nil
}

// JSON encodes the tokens as an indented JSON array.
func JSON(tokens []tokenizer.Token) (string, error) {
	if tokens == nil {
		tokens = []tokenizer.Token{}
	}
	data, err := marshal(tokens, "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode tokens: %w", err)
	}
	return data, nil
}

// CSV writes a header and one row per token. Pieces are always quoted,
// which encoding/csv cannot be told to do.
func CSV(tokens []tokenizer.Token) string {
	var sb strings.Builder
	sb.WriteString("index,piece,id,start,end,bytes")
	for _, t := range tokens {
		fmt.Fprintf(&sb, "\n%d,%s,%d,%d,%d,%d", t.Index, quote(t.Piece), t.ID, t.Start, t.End, t.Bytes)
	}
	return sb.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// marshal encodes v without HTML escaping so pieces such as "<|eot_id|>"
// stay readable.
func marshal(v any, indent string) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

// Color returns the CSS colour assigned to the token at index.
func Color(index int) string {
	h := (index * 47) % 360
	if h < 0 {
		h += 360
	}
	return fmt.Sprintf("hsl(%d, 60%%, 60%%)", h)
}
