package engine

import (
	"sync"

	"github.com/cuemby/flowexec/internal/config"
)

// Registry binds the executor and the named expression/execution engines
// configured in config.Settings. Reload rebinds them from a new
// config.Settings; the Scanner does not call it and applies a COMMUNICATE
// command's executor override for one pass instead (see Scanner.Scan).
type Registry struct {
	mu sync.RWMutex

	executor   Executor
	expression map[string]ExpressionEngine
	execution  map[string]ExecutionEngine
}

// builtinExpressionEngines and builtinExecutionEngines are the engines
// this module ships. Engines are a closed set: a deployment that needs
// more extends these maps and rebuilds, there is no dynamic plugin
// loader.
func builtinExpressionEngines() map[string]ExpressionEngine {
	return map[string]ExpressionEngine{
		"template": TemplateEngine{},
	}
}

func builtinExecutionEngines() map[string]ExecutionEngine {
	return map[string]ExecutionEngine{
		"bash":     BashEngine{},
		"template": TemplateExecutionEngine{},
	}
}

// NewRegistry loads the engines named in cfg, failing if any named engine
// has no built-in implementation.
func NewRegistry(cfg *config.Settings) (*Registry, error) {
	r := &Registry{
		expression: make(map[string]ExpressionEngine),
		execution:  make(map[string]ExecutionEngine),
	}
	if err := r.Reload(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebinds the executor and the full set of named engines from cfg.
func (r *Registry) Reload(cfg *config.Settings) error {
	available := builtinExpressionEngines()
	expression := make(map[string]ExpressionEngine, len(cfg.ExpressionEngines))
	for _, name := range cfg.ExpressionEngines {
		impl, ok := available[name]
		if !ok {
			return &ErrUnsupportedEngine{Kind: "expression", Name: name}
		}
		expression[name] = impl
	}

	availableExec := builtinExecutionEngines()
	execution := make(map[string]ExecutionEngine, len(cfg.ExecutionEngines))
	for _, name := range cfg.ExecutionEngines {
		impl, ok := availableExec[name]
		if !ok {
			return &ErrUnsupportedEngine{Kind: "execution", Name: name}
		}
		execution[name] = impl
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.executor = NewExecutor(cfg.Executor.Name)
	r.expression = expression
	r.execution = execution
	return nil
}

// ExecutorHandle returns the currently active executor.
func (r *Registry) ExecutorHandle() Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executor
}

// ExpressionEngine looks up a named expression engine.
func (r *Registry) ExpressionEngine(name string) (ExpressionEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.expression[name]
	if !ok {
		return nil, &ErrUnsupportedEngine{Kind: "expression", Name: name}
	}
	return eng, nil
}

// ExecutionEngine looks up a named execution engine.
func (r *Registry) ExecutionEngine(name string) (ExecutionEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.execution[name]
	if !ok {
		return nil, &ErrUnsupportedEngine{Kind: "execution", Name: name}
	}
	return eng, nil
}
