package engine

import "fmt"

// ErrUnsupportedEngine is returned by Registry lookups when no engine is
// registered under the requested name.
type ErrUnsupportedEngine struct {
	Kind string
	Name string
}

func (e *ErrUnsupportedEngine) Error() string {
	return fmt.Sprintf("engine: unsupported %s engine %q", e.Kind, e.Name)
}

// EvaluationError wraps a failure an engine reports while evaluating a
// task's run program; the Scanner folds it into the task's error list.
type EvaluationError struct {
	Engine string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Engine, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// EvalContext is the set of values an engine may reference while
// evaluating a task's run program or display-name template.
type EvalContext struct {
	TaskID       string
	DisplayName  string
	ParentOutput map[string]string
	Extra        map[string]any
}

// ExpressionEngine renders a template string against an EvalContext. It
// backs display-name rendering and any inline expressions a process's
// run section contains.
type ExpressionEngine interface {
	Name() string
	Evaluate(tmpl string, ctx EvalContext) (string, error)
}

// ExecutionEngine evaluates a process's run program into the literal
// text the executor will hand to the runner. zeroWork is true when the
// engine determines the task needs no subprocess at all: the Scanner
// marks the task DONE without scheduling a run.
type ExecutionEngine interface {
	Name() string
	Evaluate(program string, ctx EvalContext) (out string, zeroWork bool, err error)
}

// Executor names the sandbox/launch-argv preparer in effect; it is a thin
// handle around config.ExecutorSettings.Name used by the SandboxBuilder to
// pick the executor package's relative module path.
type Executor struct {
	name string
}

// NewExecutor wraps name as an Executor handle.
func NewExecutor(name string) Executor { return Executor{name: name} }

// Name returns the executor's configured name (e.g. "local").
func (e Executor) Name() string { return e.name }
