// Package flowexec wires the manager's components (SharedState, ControlBus,
// EngineRegistry, Scanner, BarrierCoordinator, CommandLoop and Runner) into
// a single process-wide instance.
package flowexec

import (
	"errors"
	"sync"

	"github.com/cuemby/flowexec/internal/barrier"
	"github.com/cuemby/flowexec/internal/bus"
	"github.com/cuemby/flowexec/internal/command"
	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/engine"
	"github.com/cuemby/flowexec/internal/runner"
	"github.com/cuemby/flowexec/internal/sandbox"
	"github.com/cuemby/flowexec/internal/scanner"
	"github.com/cuemby/flowexec/internal/sharedstate"
	"github.com/cuemby/flowexec/internal/tasks"
)

// ControlChannel is the well-known, single hard-coded bus channel every
// manager process listens on.
const ControlChannel = "control"

// SharedStatePrefix namespaces every shared counter/flag under one key
// prefix so multiple logical managers could share one Backend.
const SharedStatePrefix = "flowexec"

// Manager is a fully wired job execution manager instance.
type Manager struct {
	Tasks       tasks.Store
	State       *sharedstate.Client
	Bus         bus.Bus
	Engines     *engine.Registry
	Sandbox     *sandbox.Builder
	Scanner     *scanner.Scanner
	Barrier     *barrier.Coordinator
	Loop        *command.Loop
	Runner      *runner.LocalRunner
	cfg         *config.Settings
}

// ErrAlreadyInitialized guards against constructing a second manager in
// the same process.
var ErrAlreadyInitialized = errors.New("flowexec: a manager is already initialized in this process")

var (
	instanceMu sync.Mutex
	instance   *Manager
)

// New builds a Manager over store/backend/transport, wiring every
// component per the dependency graph: Scanner needs the Engine registry
// and the SandboxBuilder; CommandLoop needs the Scanner, the
// BarrierCoordinator and SharedState; the Runner is both a scanner.Scheduler
// and a runner.Runner.
func New(cfg *config.Settings, store tasks.Store, backend sharedstate.Backend, transport bus.Bus) (*Manager, error) {
	registry, err := engine.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}

	state := sharedstate.New(backend, SharedStatePrefix)
	sandboxBuilder := sandbox.NewBuilder(cfg)
	coordinator := barrier.New(state)
	localRunner := runner.New(transport, ControlChannel, state)

	scan := scanner.New(store, registry, sandboxBuilder, localRunner)
	loop := command.New(transport, ControlChannel, state, coordinator, scan, cfg, nil)

	return &Manager{
		Tasks:   store,
		State:   state,
		Bus:     transport,
		Engines: registry,
		Sandbox: sandboxBuilder,
		Scanner: scan,
		Barrier: coordinator,
		Loop:    loop,
		Runner:  localRunner,
		cfg:     cfg,
	}, nil
}

// Init installs m as the process-wide singleton. A second call without an
// intervening Shutdown fails with ErrAlreadyInitialized.
func Init(m *Manager) error {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return ErrAlreadyInitialized
	}
	instance = m
	return nil
}

// Instance returns the process-wide Manager installed by Init, or nil.
func Instance() *Manager {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Shutdown clears the process-wide singleton so a later Init may succeed.
func Shutdown() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}

// Communicate issues a COMMUNICATE command, composing the per-call
// settings/extra exactly as command.Loop.Communicate does.
func (m *Manager) Communicate(extra bus.CommunicateExtra, settings map[string]any, saveOverrides bool) error {
	return m.Loop.Communicate(extra, settings, saveOverrides)
}

// OverrideSettings merges overrides into the shared override map for the
// duration of fn, restoring the prior override map afterward regardless
// of fn's outcome. Every scan a COMMUNICATE command triggers while fn
// runs sees overrides merged on top of the host configuration (see
// command.Loop.buildEffectiveSettings).
func (m *Manager) OverrideSettings(overrides map[string]any, fn func() error) error {
	exit, err := m.Barrier.EnterOverrides(overrides)
	if err != nil {
		return err
	}
	defer exit()
	return fn()
}

// Run drives the control bus by receiving messages and dispatching them
// through the CommandLoop. It returns when stop is closed. When the bus
// implements bus.Notifier, Run blocks on its notification channel while
// the queue is empty; otherwise it calls Recv in a loop without sleeping.
func (m *Manager) Run(stop <-chan struct{}) {
	notifier, pollBased := m.Bus.(bus.Notifier)
	for {
		select {
		case <-stop:
			return
		default:
		}

		msg, ok, err := m.Bus.Recv(ControlChannel)
		if err != nil {
			continue
		}
		if !ok {
			if pollBased {
				select {
				case <-notifier.Notify(ControlChannel):
				case <-stop:
					return
				}
			}
			continue
		}
		_ = m.Loop.HandleMessage(msg)
	}
}

// Reset composes sharedstate.Client.Reset with a control-channel drain.
// It is the caller's responsibility to ensure quiescence first (no
// in-flight scans or executors), matching the documented precondition on
// sharedstate.Client.Reset.
func (m *Manager) Reset() error {
	if err := m.Bus.Drain(ControlChannel); err != nil {
		return err
	}
	return m.State.Reset()
}
