package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"run", "validate", "preview", "runs", "init", "version", "completion"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %s", name)
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	root := NewRootCmd()
	flags := root.PersistentFlags()

	for _, name := range []string{"config", "state-path", "seed", "verbose", "output-format"} {
		assert.NotNil(t, flags.Lookup(name), "missing persistent flag --%s", name)
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "reframe v")
}

func TestValidateCommand_MissingConfigFile(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"validate", "--config", "does-not-exist.yaml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
