// Package config is used to load the configuration file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

const (
	BuilderAuto       = "auto"
	BuilderXcodebuild = "xcodebuild"
	BuilderNative     = "native"

	InspectorNative = "native"
	InspectorTools  = "tools"

	envPrefix = "XCFN"
)

// Config is the configuration struct
type Config struct {
	TmpDir    string `mapstructure:"tmp_dir"`
	Builder   string `mapstructure:"builder"`
	Inspector string `mapstructure:"inspector"`
	Jobs      int    `mapstructure:"jobs"`
	Zip       bool   `mapstructure:"zip"`
	Verbose   bool   `mapstructure:"verbose"`
}

// New returns a viper instance with the defaults and the XCFN_ environment
// bound. Command line flags are applied with Set before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("tmp_dir", "")
	v.SetDefault("builder", BuilderAuto)
	v.SetDefault("inspector", InspectorNative)
	v.SetDefault("jobs", 0)
	v.SetDefault("zip", false)
	v.SetDefault("verbose", false)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

// DefaultFile is $HOME/.config/xcframework-now/config.yaml.
func DefaultFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %v", err)
	}
	return filepath.Join(home, ".config", "xcframework-now", "config.yaml"), nil
}

// Load reads file, or the default file when it exists, and returns the verified configuration.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", file, err)
		}
	} else if def, err := DefaultFile(); err == nil {
		if _, err := os.Stat(def); err == nil {
			v.SetConfigFile(def)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: failed to read %s: %w", def, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}
	return &c, nil
}

func (c *Config) verify() error {
	switch c.Builder {
	case BuilderAuto, BuilderXcodebuild, BuilderNative:
	default:
		return fmt.Errorf("unknown builder %q (want %s, %s or %s)", c.Builder, BuilderAuto, BuilderXcodebuild, BuilderNative)
	}

	switch c.Inspector {
	case InspectorNative, InspectorTools:
	default:
		return fmt.Errorf("unknown inspector %q (want %s or %s)", c.Inspector, InspectorNative, InspectorTools)
	}

	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative: %d", c.Jobs)
	}
	if c.Jobs == 0 {
		c.Jobs = runtime.NumCPU()
	}

	if c.TmpDir == "" {
		c.TmpDir = os.TempDir()
	}
	return nil
}
