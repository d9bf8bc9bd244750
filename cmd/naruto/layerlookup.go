package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cscutcher/naruto-aufs-layers/layer"
	"github.com/cscutcher/naruto-aufs-layers/orchestrator"
)

// layerFlagHelp documents the --layer grammar:
// [<tree-name-or-path>]:[<layer-spec>]. Either side may be empty: an empty
// tree reference falls back to cwd-based auto-discovery, and an empty
// layer-spec selects the layer the tree half resolved to (the named tree's
// root layer, or the auto-discovered layer).
const layerFlagHelp = "Layer to act on, as [<tree-name-or-path>]:[<layer-spec>]. " +
	"If not given, the layer mounted at the current directory is used."

// addLayerFlag registers the -l/--layer flag used by every modification
// command and returns a pointer cobra will have filled in by RunE time.
func addLayerFlag(cmd *cobra.Command) *string {
	var value string
	cmd.Flags().StringVarP(&value, "layer", "l", "", layerFlagHelp)
	return &value
}

// resolveLayer splits the --layer value on its first ':', resolves the
// tree-name-or-path half to a root Layer, then applies the layer-spec half
// (if any) against it.
func resolveLayer(ctx context.Context, cliCtx *cliContext, value string) (*layer.Layer, error) {
	treeRef, layerSpec, _ := strings.Cut(value, ":")

	var root *layer.Layer
	if treeRef == "" {
		discovered, err := orchestrator.DiscoverCurrentLayer(ctx, cliCtx.sys)
		if err != nil {
			return nil, err
		}
		root = discovered
	} else {
		resolved, err := resolveTreeRoot(cliCtx, treeRef)
		if err != nil {
			return nil, err
		}
		root = resolved
	}

	if layerSpec == "" {
		return root, nil
	}
	return root.FindLayer(ctx, layerSpec)
}

// resolveTreeRoot turns a tree-name-or-path into the tree's root Layer. A
// value containing a path separator is a literal layer directory; anything
// else names a subdirectory of naruto-home that must contain exactly one
// entry — the tree's root layer.
func resolveTreeRoot(cliCtx *cliContext, treeRef string) (*layer.Layer, error) {
	if strings.ContainsRune(treeRef, os.PathSeparator) {
		return layer.Load(cliCtx.sys, treeRef)
	}

	treeDir := filepath.Join(cliCtx.home, treeRef)
	entries, err := os.ReadDir(treeDir)
	if err != nil {
		return nil, fmt.Errorf("tree %q does not exist under %s: %w", treeRef, cliCtx.home, err)
	}
	if len(entries) != 1 {
		return nil, fmt.Errorf("expected exactly one root layer directory under %s, found %d", treeDir, len(entries))
	}
	return layer.Load(cliCtx.sys, filepath.Join(treeDir, entries[0].Name()))
}
