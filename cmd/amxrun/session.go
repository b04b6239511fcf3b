package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/asm"
	"github.com/wippyai/amx-runtime/engine"
	"github.com/wippyai/amx-runtime/wasmlib"
)

type options struct {
	script      string
	public      string
	args        string
	wasm        string
	config      string
	compile     string
	ticks       int
	tick        time.Duration
	verbose     bool
	interactive bool
}

// session is a bound machine plus everything it needs to run.
type session struct {
	eng  *engine.Engine
	m    *amx.Machine
	lib  *wasmlib.Library
	cfg  *engine.Config
	log  *zap.Logger
	out  io.Writer
	tick time.Duration
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}

// loadProgram reads assembler source (.pasm) or a compiled image (.amxc).
func loadProgram(path string) (*amx.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".amxc") {
		return amx.UnmarshalImage(data)
	}
	return asm.Parse(string(data))
}

func parseArgs(s string) ([]amx.Cell, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []amx.Cell
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", f, err)
		}
		out = append(out, amx.Cell(v))
	}
	return out, nil
}

// hostNatives are the natives the runner offers to every script.
func hostNatives(out io.Writer) map[string]amx.Native {
	return map[string]amx.Native{
		"print": func(_ *amx.Machine, p []amx.Cell) amx.Cell {
			parts := make([]string, 0, len(p)-1)
			for _, v := range p[1:] {
				parts = append(parts, strconv.Itoa(int(v)))
			}
			fmt.Fprintln(out, strings.Join(parts, " "))
			return 0
		},
		"tickcount": func(*amx.Machine, []amx.Cell) amx.Cell {
			return amx.Cell(time.Now().UnixMilli())
		},
	}
}

func openSession(ctx context.Context, o options, out io.Writer) (*session, error) {
	log, err := newLogger(o.verbose)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	wasmlib.SetLogger(log)

	cfg := engine.DefaultConfig()
	if o.config != "" {
		if cfg, err = engine.LoadConfig(o.config); err != nil {
			return nil, err
		}
	}
	tick := cfg.TickInterval
	if o.tick > 0 {
		tick = o.tick
	}

	prog, err := loadProgram(o.script)
	if err != nil {
		return nil, err
	}
	if o.compile != "" {
		img, err := amx.MarshalImage(prog)
		if err != nil {
			return nil, fmt.Errorf("compile: %w", err)
		}
		if err := os.WriteFile(o.compile, img, 0o644); err != nil {
			return nil, fmt.Errorf("write image: %w", err)
		}
		log.Info("image written", zap.String("path", o.compile), zap.Int("bytes", len(img)))
	}

	m, err := amx.New(prog)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	m.RegisterAll(hostNatives(out))

	s := &session{m: m, cfg: cfg, log: log, out: out, tick: tick}
	if o.wasm != "" {
		data, err := os.ReadFile(o.wasm)
		if err != nil {
			return nil, fmt.Errorf("read wasm: %w", err)
		}
		if s.lib, err = wasmlib.Load(ctx, data, &wasmlib.Config{}); err != nil {
			return nil, err
		}
		m.RegisterAll(s.lib.Natives())
		log.Debug("wasm natives loaded", zap.Strings("exports", s.lib.Exports()))
	}

	s.eng = engine.New(cfg, engine.WithLogger(log))
	if _, err := s.eng.Bind(m); err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *session) call(public string, args []amx.Cell) (amx.Cell, error) {
	return s.eng.Call(s.m, public, args...)
}

// drain runs n host ticks, one per tick interval. Workers get a last chance
// to finish afterwards.
func (s *session) drain(ctx context.Context, n int) error {
	if n <= 0 {
		s.eng.ProcessTick()
		return nil
	}
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.eng.ProcessTick()
		}
	}
	return nil
}

func (s *session) close(ctx context.Context) {
	if s.eng != nil {
		if err := s.eng.Unbind(s.m); err != nil {
			s.log.Warn("unbind", zap.Error(err))
		}
		s.eng.Close()
	}
	if s.lib != nil {
		_ = s.lib.Close(ctx)
	}
	_ = s.log.Sync()
}
