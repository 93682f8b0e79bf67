package engine

import "strings"

// BashEngine treats a process's run program as literal shell text handed
// to the executor unchanged. A program that is empty after trimming is
// the zero-work case: there is nothing to hand a runner, so the Scanner
// is told to mark the task DONE directly.
type BashEngine struct{}

func (BashEngine) Name() string { return "bash" }

func (BashEngine) Evaluate(program string, _ EvalContext) (string, bool, error) {
	trimmed := strings.TrimSpace(program)
	if trimmed == "" {
		return "", true, nil
	}
	return program, false, nil
}
