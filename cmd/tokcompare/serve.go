package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/born-ml/tokcompare/internal/preset"
	"github.com/born-ml/tokcompare/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			gin.SetMode(gin.ReleaseMode)

			preloaded := make([]string, 0, len(activeCfg.Models))
			for _, m := range activeCfg.Models {
				preloaded = append(preloaded, m.Name)
			}

			srv := server.New(server.Options{
				TokenizerOptions: tokenizerOptions(),
				Preloaded:        preloaded,
				Timeout:          activeCfg.Tokenize.Timeout,
				Presets:          preset.NewStore(activeCfg.Presets.Path),
				Logger:           log.Logger.With().Str("component", "server").Logger(),
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx, activeCfg.Server.ListenAddr)
		},
	}
}
