package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newListCmd(cliCtx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List named layer trees stored in naruto-home",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(cliCtx.home)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.IsDir() {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
