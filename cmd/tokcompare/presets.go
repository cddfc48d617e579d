package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/tokcompare/internal/preset"
)

func newPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage saved comparison presets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			presets := preset.NewStore(activeCfg.Presets.Path).Load()

			data := make([][]string, 0, len(presets))
			for _, p := range presets {
				data = append(data, []string{p.Name, strings.Join(p.Tokenizers(), ", "), summarize(p.InputText, 40)})
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"NAME", "TOKENIZERS", "TEXT"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(data)
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print presets as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := preset.Export(preset.NewStore(activeCfg.Presets.Path).Load())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Merge presets from an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			//nolint:gosec // G304: The import path is supplied by the user.
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read presets file: %w", err)
			}

			merged, err := preset.NewStore(activeCfg.Presets.Path).ImportMerge(data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d presets saved to %s\n", len(merged), activeCfg.Presets.Path)
			return err
		},
	})

	return cmd
}

// summarize shortens s to at most n runes on a single line.
func summarize(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
