// Package preset stores named comparison setups: an input text and the
// tokenizers of the three comparison panels.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest accepted preset name, in characters.
const MaxNameLength = 50

var (
	// ErrNameRequired is returned for blank preset names.
	ErrNameRequired = errors.New("preset name is required")
	// ErrNameTooLong is returned for names longer than MaxNameLength.
	ErrNameTooLong = fmt.Errorf("preset name must be %d characters or less", MaxNameLength)
	// ErrNameExists is returned when a preset with the name already exists.
	ErrNameExists = errors.New("preset name already exists")
	// ErrInvalidFormat is returned when imported data is not a list of presets.
	ErrInvalidFormat = errors.New("invalid preset format")
)

// Preset is a saved comparison. The field names match the exported JSON.
type Preset struct {
	Name       string `json:"name"`
	InputText  string `json:"input_text"`
	Tokenizer1 string `json:"Tokenizer_1"`
	Tokenizer2 string `json:"Tokenizer_2"`
	Tokenizer3 string `json:"Tokenizer_3"`
}

// Tokenizers returns the three panel selections in order.
func (p Preset) Tokenizers() []string {
	return []string{p.Tokenizer1, p.Tokenizer2, p.Tokenizer3}
}

// Defaults are used when no preset file exists.
func Defaults() []Preset {
	return []Preset{
		{
			Name:       "Basic Test",
			InputText:  "The quick brown fox jumps over the lazy dog.",
			Tokenizer1: "cl100k_base",
			Tokenizer2: "r50k_base",
			Tokenizer3: "o200k_base",
		},
		{
			Name:       "Code",
			InputText:  "func main() {\n\tfmt.Println(`hello, world`)\n}",
			Tokenizer1: "cl100k_base",
			Tokenizer2: "deepseek-ai/deepseek-coder-6.7b-base",
			Tokenizer3: "llama3",
		},
		{
			Name:       "Multilingual",
			InputText:  "Dobrý deň, prezidentová! 你好世界. Hello world.",
			Tokenizer1: "o200k_base",
			Tokenizer2: "Qwen/Qwen2-7B",
			Tokenizer3: "google/gemma-2b",
		},
	}
}

// rawPreset detects missing fields: every field must be a JSON string.
type rawPreset struct {
	Name       *string `json:"name"`
	InputText  *string `json:"input_text"`
	Tokenizer1 *string `json:"Tokenizer_1"`
	Tokenizer2 *string `json:"Tokenizer_2"`
	Tokenizer3 *string `json:"Tokenizer_3"`
}

func (r rawPreset) preset() (Preset, bool) {
	if r.Name == nil || r.InputText == nil || r.Tokenizer1 == nil || r.Tokenizer2 == nil || r.Tokenizer3 == nil {
		return Preset{}, false
	}
	return Preset{
		Name:       *r.Name,
		InputText:  *r.InputText,
		Tokenizer1: *r.Tokenizer1,
		Tokenizer2: *r.Tokenizer2,
		Tokenizer3: *r.Tokenizer3,
	}, true
}

// Import parses a JSON array of presets. Every element must carry all
// five string fields.
func Import(data []byte) ([]Preset, error) {
	var raw []rawPreset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to import presets: %w: %w", ErrInvalidFormat, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("failed to import presets: %w", ErrInvalidFormat)
	}

	presets := make([]Preset, 0, len(raw))
	for i, r := range raw {
		p, ok := r.preset()
		if !ok {
			return nil, fmt.Errorf("failed to import presets: %w: element %d", ErrInvalidFormat, i)
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// Export encodes presets as indented JSON.
func Export(presets []Preset) ([]byte, error) {
	if presets == nil {
		presets = []Preset{}
	}
	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export presets: %w", err)
	}
	return data, nil
}

// Merge adds imported to existing. A preset whose name already exists
// replaces it in place; others are appended. existing is not modified.
func Merge(existing, imported []Preset) []Preset {
	merged := make([]Preset, len(existing), len(existing)+len(imported))
	copy(merged, existing)

	for _, p := range imported {
		idx := indexOf(merged, p.Name)
		if idx >= 0 {
			merged[idx] = p
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// ValidateName checks a new preset name against existing presets.
func ValidateName(name string, existing []Preset) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return ErrNameRequired
	case utf8.RuneCountInString(trimmed) > MaxNameLength:
		return ErrNameTooLong
	case indexOf(existing, trimmed) >= 0:
		return ErrNameExists
	}
	return nil
}

func indexOf(presets []Preset, name string) int {
	for i, p := range presets {
		if p.Name == name {
			return i
		}
	}
	return -1
}
