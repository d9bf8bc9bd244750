package main

import (
	"github.com/spf13/cobra"

	"github.com/cscutcher/naruto-aufs-layers/layer"
)

func newInfoCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the layer tree, highlighting the selected layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			root, err := l.Root()
			if err != nil {
				return err
			}
			tw := layer.TreeWriter{Highlight: map[string]bool{l.ID(): true}}
			return tw.Write(cmd.OutOrStdout(), root)
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}
