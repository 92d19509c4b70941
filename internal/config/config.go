// Package config loads runtime configuration through viper, with cobra
// providing the flag surface and environment-variable binding. Precedence
// is flags > environment > config file > defaults, viper's native behavior.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "LEAN_PROOF_BRIDGE"

// Config is the fully-resolved runtime configuration for one process.
type Config struct {
	// BackendOverride, if set, is tried first when locating the build-server
	// binary (mirrors $LEAN_DAG_SERVER).
	BackendOverride string

	// SocketPath is the viewer bus's listen socket.
	SocketPath string

	// LogPath is the structured log file (never stdout/stderr).
	LogPath string

	// LogLevel is one of debug/info/warn/error.
	LogLevel string

	// RequestIDFloor is the first id the shadow client's request counter
	// allocates, kept disjoint from editor-assigned ids.
	RequestIDFloor int64

	// PrettyPrinterOptions are passed to the build-server after a `--`
	// separator (e.g. "pp.showLetValues=true").
	PrettyPrinterOptions []string
}

func defaults() *Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	base := filepath.Join(cacheDir, "lean-proof-bridge")

	return &Config{
		SocketPath:           filepath.Join(base, "viewer.sock"),
		LogPath:              filepath.Join(base, "core.log"),
		LogLevel:             "info",
		RequestIDFloor:       1000,
		PrettyPrinterOptions: []string{"pp.showLetValues=true"},
	}
}

// BindFlags registers the command's persistent flags and binds them into v
// with LEAN_PROOF_BRIDGE_*-prefixed environment variable fallbacks.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	d := defaults()

	flags := cmd.PersistentFlags()
	flags.String("backend", "", "path to the build-server binary (overrides auto-discovery)")
	flags.String("socket", d.SocketPath, "viewer bus listen socket path")
	flags.String("log-path", d.LogPath, "structured log file path")
	flags.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	flags.Int64("request-id-floor", d.RequestIDFloor, "first request id reserved for the shadow client")
	flags.StringSlice("pp-option", d.PrettyPrinterOptions, "pretty-printer option passed to the build-server (repeatable)")

	v.BindPFlag("backend", flags.Lookup("backend"))
	v.BindPFlag("socket", flags.Lookup("socket"))
	v.BindPFlag("log-path", flags.Lookup("log-path"))
	v.BindPFlag("log-level", flags.Lookup("log-level"))
	v.BindPFlag("request-id-floor", flags.Lookup("request-id-floor"))
	v.BindPFlag("pp-option", flags.Lookup("pp-option"))
}

// Load resolves a Config from v, which must already have had BindFlags
// applied and, if desired, a config file merged in via v.ReadInConfig().
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := defaults()

	cfg := &Config{
		BackendOverride:      v.GetString("backend"),
		SocketPath:           v.GetString("socket"),
		LogPath:              v.GetString("log-path"),
		LogLevel:             v.GetString("log-level"),
		RequestIDFloor:       v.GetInt64("request-id-floor"),
		PrettyPrinterOptions: v.GetStringSlice("pp-option"),
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = d.SocketPath
	}
	if cfg.LogPath == "" {
		cfg.LogPath = d.LogPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = d.LogLevel
	}
	if cfg.RequestIDFloor <= 0 {
		cfg.RequestIDFloor = d.RequestIDFloor
	}
	if len(cfg.PrettyPrinterOptions) == 0 {
		cfg.PrettyPrinterOptions = d.PrettyPrinterOptions
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}

	return cfg, nil
}
