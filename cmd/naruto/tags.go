package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTagsCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "tags [tag...]",
		Short: "Get or replace the selected layer's tag set",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				tags, err := l.Tags()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tags, ", "))
				return nil
			}
			return l.SetTags(args)
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}

func newAddTagsCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "add-tags <tag...>",
		Short: "Add tags to the selected layer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			existing, err := l.Tags()
			if err != nil {
				return err
			}
			return l.SetTags(append(existing, args...))
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}

func newRemoveTagsCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string

	cmd := &cobra.Command{
		Use:   "remove-tags <tag...>",
		Short: "Remove tags from the selected layer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}
			existing, err := l.Tags()
			if err != nil {
				return err
			}
			remove := make(map[string]bool, len(args))
			for _, t := range args {
				remove[t] = true
			}
			kept := existing[:0:0]
			for _, t := range existing {
				if !remove[t] {
					kept = append(kept, t)
				}
			}
			return l.SetTags(kept)
		},
	}

	layerFlag = addLayerFlag(cmd)
	return cmd
}
