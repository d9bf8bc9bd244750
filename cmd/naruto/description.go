package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDescriptionCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "description [new-description]",
		Short: "Get or set the selected layer's description",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				description, err := l.Description()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), description)
				return nil
			}
			return l.SetDescription(args[0])
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}
