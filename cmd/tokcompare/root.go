package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/born-ml/tokcompare/internal/config"
	"github.com/born-ml/tokcompare/internal/logging"
	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile   string
	activeCfg = config.DefaultConfig()
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "tokcompare",
		Short:         "Compare how different tokenizers split the same text",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			if err := logging.Setup(loaded.Log.Level, loaded.Log.Format); err != nil {
				return err
			}
			activeCfg = loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newPresetsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// tokenizerOptions returns the adapter options of the active config, with
// back-end events logged through the global logger.
func tokenizerOptions() []tokenizer.Option {
	opts := activeCfg.TokenizerOptions()
	return append(opts, tokenizer.WithEventSink(logging.NewSink(log.Logger)))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "tokcompare "+version)
		},
	}
}
