package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnmountAllCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "unmount-all",
		Short: "Unmount every live mount of the selected layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			return l.UnmountAll(ctx())
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}

func newFindMountsCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "find-mounts",
		Short: "Print every live mount that exposes the selected layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			branches, err := l.FindMountedBranches(ctx())
			if err != nil {
				return err
			}
			for _, b := range branches {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s at %s\n", b.Path(), b.Permission(), b.Mount().Mountpoint())
			}
			return nil
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}
