package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tokcompare/internal/compare"
	"github.com/born-ml/tokcompare/internal/preset"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level=error"}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"tokenize", "compare", "presets", "serve", "version"}
	var got []string
	for _, sub := range root.Commands() {
		got = append(got, sub.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "tokcompare dev\n", out)
}

func TestTokenizeCmd(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name: "pieces from args",
			args: []string{"tokenize", "-t", "org/some-model", "-f", "pieces", "Hello", "world"},
			want: `["He","llo"," ","wo","rld"]` + "\n",
		},
		{
			name:  "ids from stdin",
			stdin: "Hello world\n",
			args:  []string{"tokenize", "-t", "org/some-model", "--format", "ids", "-"},
			want:  "32000 32001 32002 32003 32004\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestTokenizeCmd_Table(t *testing.T) {
	out, err := execute(t, "", "tokenize", "-t", "org/some-model", "Hello world")
	require.NoError(t, err)
	assert.Contains(t, out, "org/some-model: 5 tokens")
	assert.Contains(t, out, "PIECE")
	assert.Contains(t, out, `"llo"`)
}

func TestTokenizeCmd_CustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slovak.model")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o600))

	out, err := execute(t, "", "tokenize", "--custom-file", path, "-f", "pieces", "čaj")
	require.NoError(t, err)
	assert.Equal(t, `["čaj"]`+"\n", out)
}

func TestTokenizeCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown tokenizer", []string{"tokenize", "-t", "bogus", "x"}, "unknown tokenizer type"},
		{"custom without model", []string{"tokenize", "-t", "custom", "x"}, "requires model data"},
		{"bad format", []string{"tokenize", "-f", "xml", "x"}, "unknown export format"},
		{"missing model file", []string{"tokenize", "--custom-file", "/nonexistent/m.model", "x"}, "failed to read model file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompareCmd_JSON(t *testing.T) {
	out, err := execute(t, "", "compare", "-t", "org/some-model", "-t", "bogus", "-f", "json", "Hello world")
	require.NoError(t, err)

	var results []compare.PanelResult
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	require.Len(t, results, 2)
	assert.Equal(t, 5, results[0].Result.TotalTokens)
	assert.Contains(t, results[1].Error, "unknown tokenizer type")
}

func TestCompareCmd_Table(t *testing.T) {
	out, err := execute(t, "", "compare", "-t", "org/some-model,gemma-2b", "Hello, world!")
	require.NoError(t, err)
	assert.Contains(t, out, "org/some-model:")
	assert.Contains(t, out, "gemma-2b: 5 tokens")
}

func TestCompareCmd_RequiresTokenizer(t *testing.T) {
	_, err := execute(t, "", "compare", "x")
	assert.Error(t, err)
}

func TestPresetsCmd(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "presets.json")

	out, err := execute(t, "", "--presets-path", store, "presets", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Basic Test")

	in := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(in, []byte(`[{"name":"Mine","input_text":"x","Tokenizer_1":"llama3","Tokenizer_2":"","Tokenizer_3":""}]`), 0o600))

	out, err = execute(t, "", "--presets-path", store, "presets", "import", in)
	require.NoError(t, err)
	assert.Contains(t, out, "4 presets saved")

	out, err = execute(t, "", "--presets-path", store, "presets", "export")
	require.NoError(t, err)
	exported, err := preset.Import([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "Mine", exported[len(exported)-1].Name)

	_, err = execute(t, "", "--presets-path", store, "presets", "import", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestReadText(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{"args joined", []string{"a", "b"}, "ignored", "a b"},
		{"no args", nil, "from stdin\n", "from stdin"},
		{"dash", []string{"-"}, "dash\n", "dash"},
		{"dash among args", []string{"a", "-"}, "ignored", "a -"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readText(tt.args, strings.NewReader(tt.stdin))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "a b", summarize("a\n  b", 10))
	assert.Equal(t, "abcd…", summarize("abcdefgh", 5))
}
