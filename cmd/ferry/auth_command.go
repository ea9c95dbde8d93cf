package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ferry/internal/config"
	"ferry/internal/publish"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize the destination channel and store the OAuth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Publish.Provider != config.PublishYouTube {
				return fmt.Errorf("publish.provider is %q; nothing to authorize", cfg.Publish.Provider)
			}
			return publish.Authorize(cmd.Context(), cfg.Publish, cmd.OutOrStdout())
		},
	}
}
