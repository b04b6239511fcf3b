package engine

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/amx-runtime/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// MaxTasks bounds the number of live tasks. 0 means unbounded.
	MaxTasks int `toml:"max_tasks"`

	// MaxNativeHooks bounds the hook table of each machine. Hooking a native
	// on a full table fails and leaves the machine unchanged.
	MaxNativeHooks int `toml:"max_native_hooks"`

	// StrictNatives makes Bind fail when the program imports natives that
	// nothing provides.
	StrictNatives bool `toml:"strict_natives"`

	// InitPublic and ExitPublic name the publics run once when a machine is
	// bound and unbound. Empty disables the callback.
	InitPublic string `toml:"init_public"`
	ExitPublic string `toml:"exit_public"`

	// TickInterval is the host tick period used by drivers such as the CLI.
	TickInterval time.Duration `toml:"tick_interval"`

	// Threads configures worker goroutines.
	Threads ThreadConfig `toml:"threads"`
}

// ThreadConfig configures the thread bridge.
type ThreadConfig struct {
	// MainOnly lists extra natives that workers always hand to the main
	// goroutine.
	MainOnly []string `toml:"main_only"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		MaxTasks:       4096,
		MaxNativeHooks: 64,
		InitPublic:     "OnScriptInit",
		ExitPublic:     "OnScriptExit",
		TickInterval:   16 * time.Millisecond,
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.ParseFailed("config", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		Logger().Sugar().Warnf("unknown config keys: %v", undecoded)
	}
	if cfg.MaxTasks < 0 || cfg.MaxNativeHooks < 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "limits must not be negative")
	}
	return cfg, nil
}
