package main

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRootCmdRegistersAllSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{
		"create", "list", "info", "mount", "branch-and-mount", "unmount-all",
		"find-mounts", "delete", "description", "tags", "add-tags", "remove-tags",
	}
	for _, name := range want {
		found, _, err := root.Find([]string{name})
		assert.NilError(t, err)
		assert.Equal(t, found.Name(), name)
	}
}

func TestDefaultHomeHonorsEnvVar(t *testing.T) {
	t.Setenv("NARUTO_HOME", "/tmp/custom-naruto-home")
	assert.Equal(t, defaultHome(), "/tmp/custom-naruto-home")
}
