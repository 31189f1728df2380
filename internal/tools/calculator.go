package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// Calculator evaluates arithmetic with CEL. Integer literals are widened to
// doubles so 7/2 is 3.5 and mixed expressions type-check.
type Calculator struct {
	env *cel.Env
}

// NewCalculator builds the CEL environment.
func NewCalculator() (*Calculator, error) {
	env, err := cel.NewEnv(ext.Math())
	if err != nil {
		return nil, fmt.Errorf("calculator env: %w", err)
	}
	return &Calculator{env: env}, nil
}

func (c *Calculator) Name() string { return "calculator" }

func (c *Calculator) Description() string {
	return "Evaluate an arithmetic expression. Supports + - * /, parentheses, comparisons and math.sqrt, math.abs, math.ceil, math.floor, math.round, math.greatest, math.least."
}

func (c *Calculator) Schema() map[string]any {
	return objectSchema([]string{"expression"}, map[string]any{
		"expression": map[string]any{"type": "string", "description": "Expression such as (3 + 4) * 2 or math.sqrt(81)."},
	})
}

// Call implements Tool.
func (c *Calculator) Call(_ context.Context, args map[string]any) (string, error) {
	expr, err := stringArg(args, "expression")
	if err != nil {
		return "", err
	}
	return c.Eval(expr)
}

// Eval evaluates expr and formats the result.
func (c *Calculator) Eval(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("expression is empty")
	}
	ast, issues := c.env.Compile(widenIntegers(expr))
	if issues != nil && issues.Err() != nil {
		return "", fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return "", fmt.Errorf("program %q: %w", expr, err)
	}
	out, _, err := prg.Eval(map[string]any{})
	if err != nil {
		return "", fmt.Errorf("eval %q: %w", expr, err)
	}

	switch v := out.Value().(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return "", fmt.Errorf("eval %q: result is %v", expr, v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// widenIntegers appends ".0" to bare integer literals.
func widenIntegers(expr string) string {
	var b strings.Builder
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		if !unicode.IsDigit(r) {
			b.WriteRune(r)
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsDigit(runes[j]) {
			j++
		}
		b.WriteString(string(runes[i:j]))
		prevIdent := i > 0 && (runes[i-1] == '.' || runes[i-1] == '_' || unicode.IsLetter(runes[i-1]))
		nextPart := j < len(runes) && (runes[j] == '.' || runes[j] == 'e' || runes[j] == 'E' || runes[j] == 'u' || runes[j] == 'x' || unicode.IsLetter(runes[j]))
		if !prevIdent && !nextPart {
			b.WriteString(".0")
		}
		i = j
	}
	return b.String()
}
