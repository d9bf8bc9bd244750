package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cscutcher/naruto-aufs-layers/orchestrator"
)

func newDeleteCmd(cliCtx *cliContext) *cobra.Command {
	var layerFlag *string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the selected layer and its entire subtree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := resolveLayer(ctx(), cliCtx, *layerFlag)
			if err != nil {
				return err
			}

			descendants, err := l.Descendants()
			if err != nil {
				return err
			}
			if len(descendants) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "WARNING: this layer has %d descendants\n", len(descendants))
			}

			mounted, err := l.Mounted(ctx())
			if err != nil {
				return err
			}
			if mounted {
				if !yes && !confirm(cmd, fmt.Sprintf("%s is currently mounted. Unmount and continue?", l.ID())) {
					return fmt.Errorf("aborted")
				}
				if err := l.UnmountAll(ctx()); err != nil {
					return err
				}
			}

			if !yes && !confirm(cmd, fmt.Sprintf("This will irreversibly delete %s and %d descendants. Continue?", l.ID(), len(descendants))) {
				return fmt.Errorf("aborted")
			}

			return orchestrator.Delete(ctx(), l)
		},
	}

	layerFlag = addLayerFlag(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompts")
	return cmd
}

// confirm prompts on cmd's stderr and reads a yes/no answer from stdin.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", question)
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
