package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/untoldecay/promantle/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton
// Should be called once at application startup
func Initialize() error {
	v = viper.New()

	v.SetConfigType("yaml")

	// Explicitly locate config.yaml and use SetConfigFile.
	// Precedence: project .pml/config.yaml > ~/.config/pml/config.yaml
	configFileSet := false

	// 1. Walk up from CWD to find a project .pml/config.yaml so commands
	//    work from subdirectories
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".pml", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/pml/config.yaml)
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "pml", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Automatic environment variable binding; environment variables take
	// precedence over the config file. E.g. PML_DB, PML_DSN,
	// PML_LOCK_TIMEOUT.
	v.SetEnvPrefix("PML")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "")
	v.SetDefault("dsn", "")
	v.SetDefault("lock-timeout", "30s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	}
	return nil
}

func ensure() *viper.Viper {
	if v == nil {
		// Library callers and tests may not have run Initialize.
		if err := Initialize(); err != nil {
			v = viper.New()
		}
	}
	return v
}

// DBPath returns the configured SQLite database path ("" when unset).
func DBPath() string {
	return ensure().GetString("db")
}

// DSN returns the configured PostgreSQL connection string ("" when unset).
func DSN() string {
	return ensure().GetString("dsn")
}

// LockTimeout returns how long ingest waits for the writer lock.
func LockTimeout() time.Duration {
	d := ensure().GetDuration("lock-timeout")
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Set overrides a config key for the current process. The CLI uses it to
// let flags win over environment and file values.
func Set(key string, value any) {
	ensure().Set(key, value)
}
