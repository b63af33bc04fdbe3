package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/IQzhan/abload/internal/config"
)

type rootOptions struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "abload",
		Short: "Load asset bundles and their dependencies",
		Long: `abload resolves bundles against a manifest and loads them with their
dependencies from a folder, an HTTP server or an S3 bucket.

Configuration is read from --config and ABLOAD_* environment variables,
for example ABLOAD_SOURCE_KIND=http ABLOAD_SOURCE_URL=https://cdn/bundles.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			if cmd.Name() == "name" {
				return nil
			}
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			cfg.ApplyLogLevel()
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (yaml)")

	cmd.AddCommand(newLoadCmd(opts))
	cmd.AddCommand(newGraphCmd(opts))
	cmd.AddCommand(newNameCmd())
	return cmd
}
