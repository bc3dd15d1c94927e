package orchestrator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"
)

// Default indicator lists. Failure indicators are checked first.
var (
	DefaultSuccessIndicators = []string{"完成", "成功", "finished", "success", "done"}
	DefaultFailureIndicators = []string{"失败", "错误", "error", "failed", "超过最大", "impossible", "不可能"}
)

// Classifier decides whether an agent's textual result is a success.
// With an expression configured, the expression decides and the lists
// are only consulted when it fails to evaluate.
type Classifier struct {
	success []string
	failure []string
	expr    string
	prog    cel.Program
}

// NewClassifier builds a classifier. Empty lists take the defaults. expr is
// an optional CEL expression over the string variable `result` that must
// evaluate to a bool, e.g. `!result.contains("failed")`.
func NewClassifier(success, failure []string, expr string) (*Classifier, error) {
	if len(success) == 0 {
		success = DefaultSuccessIndicators
	}
	if len(failure) == 0 {
		failure = DefaultFailureIndicators
	}
	c := &Classifier{success: lowerAll(success), failure: lowerAll(failure), expr: expr}
	if expr == "" {
		return c, nil
	}

	env, err := cel.NewEnv(cel.Variable("result", cel.StringType))
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile success_expr: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("success_expr must evaluate to bool, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	c.prog = prog
	return c, nil
}

// Success classifies result. Neither list matching means success.
func (c *Classifier) Success(result string) bool {
	if c.prog != nil {
		out, _, err := c.prog.Eval(map[string]any{"result": result})
		if err == nil {
			if b, ok := out.Value().(bool); ok {
				return b
			}
		}
		slog.Warn("orchestrator: success_expr evaluation failed, using indicator lists", "expr", c.expr, "error", err)
	}

	lower := strings.ToLower(result)
	for _, w := range c.failure {
		if strings.Contains(lower, w) {
			return false
		}
	}
	for _, w := range c.success {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return true
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
