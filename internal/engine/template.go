package engine

import (
	"strings"
	"text/template"
)

// TemplateEngine evaluates a string as a text/template against an
// EvalContext. It implements ExpressionEngine (display-name rendering);
// TemplateExecutionEngine adapts it to ExecutionEngine (run-program
// evaluation), since both are "render this string against what the task
// currently knows" in shape.
type TemplateEngine struct{}

func (TemplateEngine) Name() string { return "template" }

func (t TemplateEngine) Evaluate(tmpl string, ctx EvalContext) (string, error) {
	parsed, err := template.New("expr").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", &EvaluationError{Engine: t.Name(), Err: err}
	}
	var out strings.Builder
	data := map[string]any{
		"TaskID":      ctx.TaskID,
		"DisplayName": ctx.DisplayName,
		"Parents":     ctx.ParentOutput,
		"Extra":       ctx.Extra,
	}
	if err := parsed.Execute(&out, data); err != nil {
		return "", &EvaluationError{Engine: t.Name(), Err: err}
	}
	return out.String(), nil
}

// TemplateExecutionEngine adapts TemplateEngine to ExecutionEngine: a
// template program is never considered zero-work — an empty result is
// just an empty shell command, not an instruction to skip execution
// (that is BashEngine's contract).
type TemplateExecutionEngine struct {
	TemplateEngine
}

func (t TemplateExecutionEngine) Evaluate(program string, ctx EvalContext) (string, bool, error) {
	out, err := t.TemplateEngine.Evaluate(program, ctx)
	if err != nil {
		return "", false, err
	}
	return out, false, nil
}
