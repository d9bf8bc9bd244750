package main

import (
	"github.com/spf13/cobra"

	"github.com/cscutcher/naruto-aufs-layers/orchestrator"
)

func newMountCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "mount <destination>",
		Short: "Mount the selected layer at destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			return orchestrator.Mount(ctx(), l, args[0])
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}

func newBranchAndMountCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string
	var description string

	cmd := &cobra.Command{
		Use:   "branch-and-mount <destination>",
		Short: "Branch the selected layer and mount the new child at destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			child, err := orchestrator.BranchAndMount(ctx(), l, description, args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(child.ID() + "\n"))
			return err
		},
	}

	layerFlag = addLayerFlag(cmd)
	cmd.Flags().StringVar(&description, "description", "", "Description for the new child layer")
	return cmd
}
