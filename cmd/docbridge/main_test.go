package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modelsYAML = `
models:
  - name: users
    properties:
      email:
        type: String
        index: true
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores flag defaults, which cobra keeps between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestSchemaCommands(t *testing.T) {
	dir := t.TempDir()
	modelsPath := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(modelsPath, []byte(modelsYAML), 0o600))

	configPath := filepath.Join(dir, "docbridge.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  type: memory\n  database: clitest\nlog:\n  level: ERROR\n"), 0o600))

	out, err := execute(t, "isactual", "--config", configPath, "--models", modelsPath)
	assert.Error(t, err)
	assert.Contains(t, out, "false")

	out, err = execute(t, "autoupdate", "--config", configPath, "--models", modelsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	out, err = execute(t, "isactual", "--config", configPath, "--models", modelsPath)
	require.NoError(t, err)
	assert.Equal(t, "true", strings.TrimSpace(out))
}

func TestFindAndCountOnEmptyStore(t *testing.T) {
	out, err := execute(t, "count", "users", "--store-type", "memory", "--log-level", "ERROR", "--where", `{"age":{"gt":1}}`)
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))

	out, err = execute(t, "find", "users", "--store-type", "memory", "--log-level", "ERROR", "--order", "age DESC", "--limit", "2")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Empty(t, rows)
}

func TestInvalidWhere(t *testing.T) {
	_, err := execute(t, "count", "users", "--store-type", "memory", "--where", "{nope")
	assert.ErrorContains(t, err, "invalid --where JSON")
}
