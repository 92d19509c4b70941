package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundCommand() (*cobra.Command, *viper.Viper) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	BindFlags(cmd, v)
	return cmd, v
}

func TestLoadAppliesDefaultsWhenNothingSet(t *testing.T) {
	_, v := newBoundCommand()

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(1000), cfg.RequestIDFloor)
	assert.Equal(t, []string{"pp.showLetValues=true"}, cfg.PrettyPrinterOptions)
	assert.True(t, filepath.IsAbs(cfg.SocketPath))
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cmd, v := newBoundCommand()
	require.NoError(t, cmd.PersistentFlags().Set("backend", "/opt/custom/lean-dag"))
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "debug"))
	require.NoError(t, cmd.PersistentFlags().Set("request-id-floor", "5000"))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/opt/custom/lean-dag", cfg.BackendOverride)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(5000), cfg.RequestIDFloor)
}

func TestEnvOverridesDefaultButNotFlags(t *testing.T) {
	cmd, v := newBoundCommand()
	t.Setenv("LEAN_PROOF_BRIDGE_LOG_LEVEL", "warn")
	t.Setenv("LEAN_PROOF_BRIDGE_REQUEST_ID_FLOOR", "3000")
	require.NoError(t, cmd.PersistentFlags().Set("request-id-floor", "2000"))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, int64(2000), cfg.RequestIDFloor)
}

func TestLoadCreatesLogAndSocketDirectories(t *testing.T) {
	cmd, v := newBoundCommand()
	dir := t.TempDir()
	require.NoError(t, cmd.PersistentFlags().Set("log-path", filepath.Join(dir, "nested", "core.log")))
	require.NoError(t, cmd.PersistentFlags().Set("socket", filepath.Join(dir, "sockdir", "viewer.sock")))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, "nested"))
	assert.DirExists(t, filepath.Join(dir, "sockdir"))
	assert.Equal(t, filepath.Join(dir, "nested", "core.log"), cfg.LogPath)
}
