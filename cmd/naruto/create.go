package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cscutcher/naruto-aufs-layers/layer"
)

func newCreateCmd(cliCtx *cliContext) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name-or-path>",
		Short: "Create a new root layer tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nameOrPath := args[0]

			var treeDir string
			if strings.ContainsRune(nameOrPath, os.PathSeparator) {
				treeDir = nameOrPath
			} else {
				if err := layer.EnsureHome(cliCtx.home); err != nil {
					return err
				}
				treeDir = filepath.Join(cliCtx.home, nameOrPath)
			}

			if err := os.MkdirAll(treeDir, 0o755); err != nil {
				return err
			}
			entries, err := os.ReadDir(treeDir)
			if err != nil {
				return err
			}
			if len(entries) != 0 {
				return fmt.Errorf("expected %s to be empty", treeDir)
			}

			root, err := layer.Create(cliCtx.sys, treeDir, true, description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), root.ID())
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Description for the new root layer")
	return cmd
}
