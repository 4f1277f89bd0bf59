package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "geostore", cmd.Use)
	assert.Contains(t, cmd.Long, "antimeridian")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"save"},
		{"get"},
		{"find"},
		{"area"},
		{"admin", "national"},
		{"admin", "subnational"},
		{"admin", "regional"},
		{"admin", "use"},
		{"admin", "list"},
		{"redirect", "import"},
		{"redirect", "resolve"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("metrics-file"))
}

func TestSaveCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	saveCmd, _, err := cmd.Find([]string{"save"})
	require.NoError(t, err)

	for _, name := range []string{"provider-type", "provider-table", "provider-user", "provider-filter", "lock", "info"} {
		assert.NotNil(t, saveCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestAdminSimplifyFlag(t *testing.T) {
	cmd := NewRootCommand()
	for _, sub := range []string{"national", "subnational", "regional", "use"} {
		c, _, err := cmd.Find([]string{"admin", sub})
		require.NoError(t, err)
		assert.NotNil(t, c.Flags().Lookup("simplify"), "admin %s", sub)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"admin", "list", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"get without id", []string{"get"}},
		{"find without ids", []string{"find"}},
		{"subnational without id1", []string{"admin", "subnational", "BRA"}},
		{"redirect import without file", []string{"redirect", "import"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.Execute())
		})
	}
}
