package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IQzhan/abload/source"
)

func newNameCmd() *cobra.Command {
	var file bool
	cmd := &cobra.Command{
		Use:   "name PATH...",
		Short: "Print the bundle name of asset directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range args {
				if file {
					fmt.Fprintln(cmd.OutOrStdout(), source.FileBundleName(p))
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), source.BundleName(p))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&file, "file", false, "treat arguments as asset files")
	return cmd
}
