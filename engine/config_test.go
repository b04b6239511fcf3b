package engine

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wippyai/amx-runtime/errors"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(*testing.T, *Config)
		wantErr errors.Kind
	}{
		{
			name:  "empty keeps defaults",
			input: "",
			check: func(t *testing.T, c *Config) {
				d := DefaultConfig()
				if c.MaxTasks != d.MaxTasks || c.InitPublic != d.InitPublic || c.TickInterval != d.TickInterval {
					t.Errorf("defaults changed: %+v", c)
				}
			},
		},
		{
			name: "overrides",
			input: `
max_tasks = 10
max_native_hooks = 2
strict_natives = true
init_public = ""
tick_interval = "50ms"

[threads]
main_only = ["db_query"]
`,
			check: func(t *testing.T, c *Config) {
				if c.MaxTasks != 10 || c.MaxNativeHooks != 2 || !c.StrictNatives {
					t.Errorf("limits = %+v", c)
				}
				if c.InitPublic != "" || c.ExitPublic != "OnScriptExit" {
					t.Errorf("publics = %q, %q", c.InitPublic, c.ExitPublic)
				}
				if c.TickInterval != 50*time.Millisecond {
					t.Errorf("tick interval = %v", c.TickInterval)
				}
				if len(c.Threads.MainOnly) != 1 || c.Threads.MainOnly[0] != "db_query" {
					t.Errorf("main only = %v", c.Threads.MainOnly)
				}
			},
		},
		{
			name:    "negative limit",
			input:   "max_tasks = -1",
			wantErr: errors.KindInvalidInput,
		},
		{
			name:    "syntax error",
			input:   "max_tasks = ",
			wantErr: errors.KindInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.input))
			if tt.wantErr != "" {
				var e *errors.Error
				if !stderrors.As(err, &e) || e.Kind != tt.wantErr {
					t.Fatalf("error = %v, want kind %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amx.toml")
	if err := os.WriteFile(path, []byte("max_tasks = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil || cfg.MaxTasks != 3 {
		t.Fatalf("LoadConfig = (%+v, %v)", cfg, err)
	}

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindNotFound}) {
		t.Errorf("missing file error = %v", err)
	}
}
