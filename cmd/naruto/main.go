// Command naruto manages a tree of layered aufs filesystem snapshots.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cscutcher/naruto-aufs-layers/aufs"
	"github.com/cscutcher/naruto-aufs-layers/layer"
	"github.com/cscutcher/naruto-aufs-layers/mountdriver"
	"github.com/cscutcher/naruto-aufs-layers/mountinfo"
)

// cliContext carries the resolved naruto home directory and the live
// System through every subcommand.
type cliContext struct {
	home string
	sys  *layer.System
}

func defaultHome() string {
	if home := os.Getenv("NARUTO_HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".naruto")
	}
	return ".naruto"
}

func newSystem(sudo bool) *layer.System {
	driver := &mountdriver.ExecDriver{Sudo: sudo}
	return &layer.System{
		MountInfo: mountinfo.NewFileProvider(),
		Inspector: &aufs.SysfsInspector{},
		Driver:    driver,
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cliCtx := &cliContext{}
	var verbosity string
	var sudo bool

	root := &cobra.Command{
		Use:           "naruto",
		Short:         "Manage a tree of layered aufs filesystem snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(verbosity)
			if err != nil {
				return fmt.Errorf("bad verbosity %q: %w", verbosity, err)
			}
			logrus.SetLevel(level)
			cliCtx.sys = newSystem(sudo)
			log.G(cmd.Context()).WithField("home", cliCtx.home).Debug("naruto home resolved")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cliCtx.home, "naruto-home", defaultHome(), "Directory used to store and retrieve named layer trees")
	root.PersistentFlags().StringVarP(&verbosity, "verbosity", "V", "info", "Log level: panic, fatal, error, warning, info, debug, trace")
	root.PersistentFlags().BoolVar(&sudo, "sudo", false, "Invoke mount/umount through sudo -n")

	root.AddCommand(
		newCreateCmd(cliCtx),
		newListCmd(cliCtx),
		newInfoCmd(cliCtx),
		newMountCmd(cliCtx),
		newBranchAndMountCmd(cliCtx),
		newUnmountAllCmd(cliCtx),
		newFindMountsCmd(cliCtx),
		newDeleteCmd(cliCtx),
		newDescriptionCmd(cliCtx),
		newTagsCmd(cliCtx),
		newAddTagsCmd(cliCtx),
		newRemoveTagsCmd(cliCtx),
	)
	return root
}

// ctx is a thin indirection point: the core takes context.Context
// everywhere, but this CLI has no cancellation source of its own beyond
// process lifetime.
func ctx() context.Context { return context.Background() }
