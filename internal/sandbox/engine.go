// Package sandbox loads and runs untrusted bytecode skills. Each invocation
// gets a fresh, isolated execution context linked against a fixed capability
// namespace; a skill holds no ambient authority and no state between runs.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"omega/internal/devices"
	"omega/internal/events"
	"omega/internal/governor"
)

// hostNamespace is the only module name a skill may import functions from.
const hostNamespace = "omega"

// entryPoint is the required no-argument, no-return export.
const entryPoint = "run"

// defaultTimeout bounds a single skill invocation so a hung or spinning
// guest cannot stall the caller.
const defaultTimeout = 10 * time.Second

// Engine executes skills against a shared device registry.
type Engine struct {
	registry *devices.Registry
	governor *governor.Governor
	dir      string
	logger   *zap.Logger
	events   chan<- events.Event
	timeout  time.Duration

	mu    sync.RWMutex
	index map[string]string // skill name -> wasm path, maintained by Watch
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents routes skill trace lines and ui_broadcast messages to ch.
func WithEvents(ch chan<- events.Event) Option {
	return func(e *Engine) { e.events = ch }
}

// WithTimeout overrides the per-invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithGovernor gates skill-originated device commands through the Risk
// Governor before they reach the bus.
func WithGovernor(g *governor.Governor) Option {
	return func(e *Engine) { e.governor = g }
}

// NewEngine creates an Engine over the skills directory dir.
func NewEngine(registry *devices.Registry, dir string, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		registry: registry,
		dir:      dir,
		logger:   logger,
		timeout:  defaultTimeout,
		index:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListSkills returns the names of installed skills, sorted.
func (e *Engine) ListSkills() ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skills dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wasm" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".wasm"))
	}
	sort.Strings(names)
	return names, nil
}

// HasSkill reports whether the named skill is installed.
func (e *Engine) HasSkill(name string) bool {
	_, err := e.resolve(name)
	return err == nil
}

// RunSkill loads the named skill from the skills directory and runs it with
// the given input, returning the output the skill recorded.
func (e *Engine) RunSkill(ctx context.Context, name, input string) (string, error) {
	path, err := e.resolve(name)
	if err != nil {
		return "", err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read skill %s: %w", name, err)
	}
	return e.run(ctx, name, source, input)
}

// RunSkillFromSource runs raw module bytes without touching the skills
// directory.
func (e *Engine) RunSkillFromSource(ctx context.Context, source []byte, input string) (string, error) {
	return e.run(ctx, "(inline)", source, input)
}

func (e *Engine) resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("skill %q: %w", name, ErrSkillNotFound)
	}
	e.mu.RLock()
	path, ok := e.index[name]
	e.mu.RUnlock()
	if !ok {
		path = filepath.Join(e.dir, name+".wasm")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("skill %q: %w", name, ErrSkillNotFound)
	}
	return path, nil
}

// session is the per-invocation state the host functions operate on. A new
// one is created for every run; nothing in it outlives the call.
type session struct {
	skill  string
	input  string
	output string
	trace  []string
}

func (e *Engine) run(ctx context.Context, name string, source []byte, input string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	runtime := wazero.NewRuntimeWithConfig(ctx,
		wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer runtime.Close(context.WithoutCancel(ctx))

	sess := &session{skill: name, input: input}
	if err := e.instantiateHost(ctx, runtime, sess); err != nil {
		return "", &LoadError{Skill: name, Err: err}
	}

	compiled, err := runtime.CompileModule(ctx, source)
	if err != nil {
		return "", &LoadError{Skill: name, Err: err}
	}

	// Start functions are disabled: the only entry point we honor is `run`.
	mod, err := runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		return "", &LoadError{Skill: name, Err: err}
	}

	fn := mod.ExportedFunction(entryPoint)
	if fn == nil {
		return "", &ABIError{Skill: name, Reason: "module does not export run()"}
	}
	if def := fn.Definition(); len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		return "", &ABIError{Skill: name, Reason: "run() must take no parameters and return nothing"}
	}

	if _, err := fn.Call(ctx); err != nil {
		// Output is discarded on a trap; the host is unaffected.
		e.flushTrace(sess)
		return "", &TrapError{Skill: name, Err: err}
	}
	e.flushTrace(sess)

	if sess.output == "" {
		return fmt.Sprintf("Skill %s executed successfully.", name), nil
	}
	return sess.output, nil
}

// instantiateHost links the fixed capability set into the runtime. These are
// the only imports a skill may use; anything else fails instantiation.
func (e *Engine) instantiateHost(ctx context.Context, runtime wazero.Runtime, sess *session) error {
	_, err := runtime.NewHostModuleBuilder(hostNamespace).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			writeTruncated(m.Memory(), ptr, length, []byte(sess.input))
		}).
		Export("get_input").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			if s, ok := readString(m.Memory(), ptr, length); ok {
				sess.output = s
			}
		}).
		Export("set_output").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			if s, ok := readString(m.Memory(), ptr, length); ok {
				sess.trace = append(sess.trace, s)
			}
		}).
		Export("log").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, idPtr, idLen, cmdPtr, cmdLen uint32) {
			e.arkBusCommand(m.Memory(), sess, idPtr, idLen, cmdPtr, cmdLen)
		}).
		Export("ark_bus_command").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, idPtr, idLen, metricPtr, metricLen, outPtr, outLen uint32) int32 {
			return e.arkReadSensor(m.Memory(), idPtr, idLen, metricPtr, metricLen, outPtr, outLen)
		}).
		Export("ark_read_sensor").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, outPtr, outLen uint32) int32 {
			return e.getAllDevices(m.Memory(), outPtr, outLen)
		}).
		Export("get_all_devices").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			if s, ok := readString(m.Memory(), ptr, length); ok {
				events.Emit(e.events, events.Output{Text: s})
				e.logger.Info("skill broadcast",
					zap.String("skill", sess.skill), zap.String("message", s))
			}
		}).
		Export("ui_broadcast").
		Instantiate(ctx)
	return err
}

// arkBusCommand forwards a device command from the guest. Fire-and-forget:
// the result lands in the trace only, so a skill cannot branch on it.
func (e *Engine) arkBusCommand(mem guestMemory, sess *session, idPtr, idLen, cmdPtr, cmdLen uint32) {
	id, ok := readString(mem, idPtr, idLen)
	if !ok {
		return
	}
	cmd, ok := readString(mem, cmdPtr, cmdLen)
	if !ok {
		return
	}
	if e.governor != nil && !e.governor.AssessRisk(cmd) {
		sess.trace = append(sess.trace, fmt.Sprintf("bus command blocked by policy: %s", cmd))
		return
	}
	msg, err := e.registry.ExecuteCommand(id, cmd)
	if err != nil {
		sess.trace = append(sess.trace, fmt.Sprintf("bus command failed: %v", err))
		return
	}
	sess.trace = append(sess.trace, fmt.Sprintf("bus command ok: %s", msg))
}

func (e *Engine) arkReadSensor(mem guestMemory, idPtr, idLen, metricPtr, metricLen, outPtr, outLen uint32) int32 {
	id, ok := readString(mem, idPtr, idLen)
	if !ok {
		return -1
	}
	metric, ok := readString(mem, metricPtr, metricLen)
	if !ok {
		return -1
	}
	reading, err := e.registry.ReadSensor(id, metric)
	if err != nil {
		return -1
	}
	formatted := fmt.Sprintf("%g %s", reading.Value, reading.Unit)
	return writeBounded(mem, outPtr, outLen, []byte(formatted))
}

func (e *Engine) getAllDevices(mem guestMemory, outPtr, outLen uint32) int32 {
	all := e.registry.All()
	payload, err := json.Marshal(all)
	if err != nil {
		return -1
	}
	events.Emit(e.events, events.Devices{Entities: all})
	return writeBounded(mem, outPtr, outLen, payload)
}

func (e *Engine) flushTrace(sess *session) {
	for _, line := range sess.trace {
		e.logger.Debug("skill trace",
			zap.String("skill", sess.skill), zap.String("line", line))
		events.Emit(e.events, events.Trace{Source: sess.skill, Line: line})
	}
}
