package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IQzhan/abload"
)

func newGraphCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph BUNDLE",
		Short: "Print the dependency graph of a bundle from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, provider, closeSources, err := opts.cfg.Sources(ctx)
			if err != nil {
				return err
			}
			defer closeSources()

			m, err := provider.FetchManifest(ctx)
			if err != nil {
				return err
			}
			g, err := abload.ManifestGraph(m, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "dot":
				fmt.Fprint(out, g.DOT())
			case "mermaid":
				fmt.Fprint(out, g.Mermaid())
			case "order":
				for _, name := range g.TopoOrder {
					fmt.Fprintln(out, name)
				}
			default:
				return fmt.Errorf("unknown format %q (dot, mermaid, order)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot, mermaid, order")
	return cmd
}
