package wasmlib

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/errors"
	"github.com/wippyai/amx-runtime/guard"
)

// HostModule is the import namespace guests use to reach machine memory.
const HostModule = "amx"

const badAddress = "amx memory access out of bounds"

// Config holds configuration for loading a library
type Config struct {
	// Name is the instance name. Defaults to "natives".
	Name string

	// Prefix is prepended to every export to form the native name.
	Prefix string

	// MemoryLimitPages caps guest memory in 64KB pages. 0 means the wazero
	// default.
	MemoryLimitPages uint32
}

type export struct {
	params int
	result bool
}

// Library is an instantiated wasm module whose exports serve as natives.
// Calls are serialized.
type Library struct {
	cfg      Config
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	exports  map[string]export
	base     context.Context

	mu       sync.Mutex
	mod      api.Module
	restarts int
}

type machineKey struct{}

// Load compiles and instantiates wasm.
func Load(ctx context.Context, wasm []byte, cfg *Config) (*Library, error) {
	l := &Library{base: ctx, exports: make(map[string]export)}
	if cfg != nil {
		l.cfg = *cfg
	}
	if l.cfg.Name == "" {
		l.cfg.Name = "natives"
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if l.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(l.cfg.MemoryLimitPages)
	}
	l.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := l.hostModule().Instantiate(ctx); err != nil {
		l.runtime.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	compiled, err := l.runtime.CompileModule(ctx, wasm)
	if err != nil {
		l.runtime.Close(ctx)
		return nil, errors.Load("compile wasm module", err)
	}
	l.compiled = compiled

	for name, def := range compiled.ExportedFunctions() {
		if e, ok := i32Signature(def); ok {
			l.exports[name] = e
		} else {
			Logger().Debug("export skipped",
				zap.String("name", name),
				zap.Error(errors.Unsupported(errors.PhaseWasm, "non-i32 signature")))
		}
	}

	if err := l.instantiate(ctx); err != nil {
		l.runtime.Close(ctx)
		return nil, err
	}

	Logger().Debug("library loaded",
		zap.String("name", l.cfg.Name),
		zap.Int("natives", len(l.exports)))
	return l, nil
}

func i32Signature(def api.FunctionDefinition) (export, bool) {
	for _, p := range def.ParamTypes() {
		if p != api.ValueTypeI32 {
			return export{}, false
		}
	}
	results := def.ResultTypes()
	if len(results) > 1 || (len(results) == 1 && results[0] != api.ValueTypeI32) {
		return export{}, false
	}
	return export{params: len(def.ParamTypes()), result: len(results) == 1}, true
}

func (l *Library) instantiate(ctx context.Context) error {
	mod, err := l.runtime.InstantiateModule(ctx, l.compiled, wazero.NewModuleConfig().WithName(l.cfg.Name))
	if err != nil {
		return errors.Instantiation(err)
	}
	l.mod = mod
	return nil
}

// restart replaces the instance after a corrupting trap. Caller holds mu.
func (l *Library) restart(ctx context.Context) {
	if l.mod != nil {
		l.mod.Close(ctx)
		l.mod = nil
	}
	if err := l.instantiate(ctx); err != nil {
		Logger().Error("re-instantiation failed", zap.String("name", l.cfg.Name), zap.Error(err))
		return
	}
	l.restarts++
	Logger().Warn("library re-instantiated",
		zap.String("name", l.cfg.Name),
		zap.Int("restarts", l.restarts))
}

func (l *Library) hostModule() wazero.HostModuleBuilder {
	i32 := api.ValueTypeI32
	b := l.runtime.NewHostModuleBuilder(HostModule)
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			v, err := callerOf(ctx).ReadCell(amx.Cell(uint32(stack[0])))
			if err != nil {
				panic(badAddress)
			}
			stack[0] = uint64(uint32(v))
		}), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("load")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			if err := callerOf(ctx).WriteCell(amx.Cell(uint32(stack[0])), amx.Cell(uint32(stack[1]))); err != nil {
				panic(badAddress)
			}
		}), []api.ValueType{i32, i32}, nil).
		Export("store")
	return b
}

func callerOf(ctx context.Context) *amx.Machine {
	m, _ := ctx.Value(machineKey{}).(*amx.Machine)
	if m == nil {
		panic("amx host function called outside a native")
	}
	return m
}

// Exports returns the native-capable export names, sorted.
func (l *Library) Exports() []string {
	names := make([]string, 0, len(l.exports))
	for name := range l.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Restarts returns how many times the instance was replaced.
func (l *Library) Restarts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.restarts
}

// Call invokes export name on behalf of m. A trap is returned as a fault
// error from the guard package.
func (l *Library) Call(ctx context.Context, m *amx.Machine, name string, args ...amx.Cell) (amx.Cell, error) {
	exp, ok := l.exports[name]
	if !ok {
		return 0, errors.NotFound(errors.PhaseWasm, "export", name)
	}
	if len(args) != exp.params {
		return 0, errors.New(errors.PhaseWasm, errors.KindInvalidInput).
			Detail("%s takes %d arguments, got %d", name, exp.params, len(args)).
			Build()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mod == nil {
		return 0, errors.NotInitialized(errors.PhaseWasm, l.cfg.Name)
	}

	raw := make([]uint64, len(args))
	for i, a := range args {
		raw[i] = api.EncodeI32(int32(a))
	}
	res, err := l.mod.ExportedFunction(name).Call(context.WithValue(ctx, machineKey{}, m), raw...)
	if err != nil {
		code, trapped := guard.FromTrap(err)
		if !trapped {
			if !strings.Contains(err.Error(), badAddress) {
				return 0, errors.Wrap(errors.PhaseWasm, errors.KindFault, err, name)
			}
			code = guard.AccessViolation
		}
		fault := guard.Fault(name, code, "")
		fault.Cause = err
		Logger().Error("wasm trap",
			zap.String("native", name),
			zap.Stringer("code", code),
			zap.Error(err))
		if code.Corrupting() {
			l.restart(ctx)
		}
		return 0, fault
	}
	if !exp.result || len(res) == 0 {
		return 0, nil
	}
	return amx.Cell(api.DecodeI32(res[0])), nil
}

// Natives returns one native per export, named Prefix+export.
func (l *Library) Natives() map[string]amx.Native {
	natives := make(map[string]amx.Native, len(l.exports))
	for name, exp := range l.exports {
		natives[l.cfg.Prefix+name] = l.native(name, exp.params)
	}
	return natives
}

func (l *Library) native(name string, params int) amx.Native {
	return func(m *amx.Machine, p []amx.Cell) amx.Cell {
		args := p[1:]
		if len(args) != params {
			m.RaiseError(amx.ErrParams)
			return 0
		}
		v, err := l.Call(l.base, m, name, args...)
		if err != nil {
			m.RaiseFault(err)
			return 0
		}
		return v
	}
}

// Close releases the instance and the runtime.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mod = nil
	return l.runtime.Close(ctx)
}
