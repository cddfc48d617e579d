package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/tokcompare/internal/compare"
	"github.com/born-ml/tokcompare/internal/format"
	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// formatTable is the default human readable output.
const formatTable = "table"

type customFlags struct {
	file string
	url  string
	name string
}

func (f *customFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "custom-file", "", "SentencePiece model file for the custom tokenizer")
	cmd.Flags().StringVar(&f.url, "custom-url", "", "SentencePiece model URL for the custom tokenizer")
	cmd.Flags().StringVar(&f.name, "custom-name", "", "Display name of the custom tokenizer")
	cmd.MarkFlagsMutuallyExclusive("custom-file", "custom-url")
}

func (f *customFlags) set() bool {
	return f.file != "" || f.url != ""
}

// data loads the custom model description, or returns nil when no custom
// model was given.
func (f *customFlags) data() (*tokenizer.CustomData, error) {
	if !f.set() {
		return nil, nil
	}

	out := &tokenizer.CustomData{Name: f.name, ModelURL: f.url}
	if f.file != "" {
		//nolint:gosec // G304: The model path is supplied by the user.
		b, err := os.ReadFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read model file: %w", err)
		}
		out.ModelFile = b
		if out.Name == "" {
			out.Name = filepath.Base(f.file)
		}
	}
	return out, nil
}

func validateFormat(s string) error {
	if s == formatTable {
		return nil
	}
	_, err := format.ParseKind(s)
	return err
}

func newTokenizeCmd() *cobra.Command {
	var (
		id     string
		output string
		custom customFlags
	)

	cmd := &cobra.Command{
		Use:   "tokenize [text|-]",
		Short: "Tokenize text with one tokenizer",
		Long:  "Tokenize text with one tokenizer. Text is read from stdin when omitted or \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			if custom.set() && !cmd.Flags().Changed("tokenizer") {
				id = tokenizer.IdentifierCustom
			}

			cd, err := custom.data()
			if err != nil {
				return err
			}
			adapter, err := tokenizer.New(id, cd, tokenizerOptions()...)
			if err != nil {
				return fmt.Errorf("failed to create tokenizer %q: %w", id, err)
			}

			text, err := readText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			res, err := compare.Run(commandContext(cmd), adapter, text, activeCfg.Tokenize.Timeout)
			if err != nil {
				return fmt.Errorf("tokenizer %q: %w", adapter.Name(), err)
			}

			return printResult(cmd.OutOrStdout(), output, adapter.Name(), res)
		},
	}

	cmd.Flags().StringVarP(&id, "tokenizer", "t", tokenizer.IdentifierLlama3, "Tokenizer identifier")
	cmd.Flags().StringVarP(&output, "format", "f", formatTable, "Output format (table|json|csv|ids|pieces)")
	custom.register(cmd)

	return cmd
}

func newCompareCmd() *cobra.Command {
	var (
		ids    []string
		output string
		custom customFlags
	)

	cmd := &cobra.Command{
		Use:   "compare [text|-]",
		Short: "Tokenize text with several tokenizers side by side",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("at least one --tokenizer is required")
			}

			cd, err := custom.data()
			if err != nil {
				return err
			}
			panels := make([]compare.Panel, len(ids))
			for i, id := range ids {
				panels[i] = compare.Panel{Tokenizer: id}
				if id == tokenizer.IdentifierCustom {
					panels[i].Custom = cd
				}
			}

			text, err := readText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			c := compare.New(
				compare.WithTimeout(activeCfg.Tokenize.Timeout),
				compare.WithTokenizerOptions(tokenizerOptions()...),
			)
			results, err := c.Compare(commandContext(cmd), text, panels)
			if err != nil {
				return err
			}

			return printComparison(cmd.OutOrStdout(), output, results)
		},
	}

	cmd.Flags().StringSliceVarP(&ids, "tokenizer", "t", nil, "Tokenizer identifier (repeatable)")
	cmd.Flags().StringVarP(&output, "format", "f", formatTable, "Output format (table|json|csv|ids|pieces)")
	custom.register(cmd)

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// readText returns the positional arguments joined by spaces, or stdin when
// there are none or the only one is "-".
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}

func printResult(w io.Writer, output, name string, res tokenizer.Result) error {
	if output == formatTable {
		_, _ = fmt.Fprintf(w, "%s: %d tokens in %dms\n", name, res.TotalTokens, res.Latency)
		printTable(w, res.Tokens)
		return nil
	}

	body, err := format.Render(format.Kind(output), res.Tokens)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, body)
	return err
}

func printComparison(w io.Writer, output string, results []compare.PanelResult) error {
	if output == string(format.KindJSON) {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	for i, r := range results {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		switch {
		case r.Error != "":
			_, _ = fmt.Fprintf(w, "%s: error: %s\n", r.Tokenizer, r.Error)
			continue
		case r.TimedOut:
			_, _ = fmt.Fprintf(w, "%s: timed out\n", r.Tokenizer)
			continue
		case r.Tokenizer == "":
			continue
		}

		if output != formatTable {
			_, _ = fmt.Fprintf(w, "%s:\n", r.Tokenizer)
		}
		if err := printResult(w, output, r.Tokenizer, r.Result); err != nil {
			return err
		}
	}
	return nil
}

func printTable(w io.Writer, tokens []tokenizer.Token) {
	data := make([][]string, 0, len(tokens))
	for _, t := range tokens {
		data = append(data, []string{
			strconv.Itoa(t.Index),
			strconv.Quote(t.Piece),
			strconv.Itoa(t.ID),
			strconv.Itoa(t.Start),
			strconv.Itoa(t.End),
			strconv.Itoa(t.Bytes),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"INDEX", "PIECE", "ID", "START", "END", "BYTES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
