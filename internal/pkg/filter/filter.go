// Package filter evaluates CEL expressions against audit records so
// subscribers can narrow a stream server side.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

// Filter is a compiled boolean expression. A nil *Filter matches everything.
type Filter struct {
	expr string
	prog cel.Program
}

var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("vehicle_id", cel.StringType),
		cel.Variable("logical_time", cel.IntType),
		// Payload as decoded JSON.
		cel.Variable("payload", cel.DynType),
	)
	if err != nil {
		panic(fmt.Sprintf("filter: build cel env: %v", err))
	}
}

// Compile parses and type-checks expr. An empty expression yields a nil
// Filter.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter: %w", iss.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("filter must evaluate to bool, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build filter program: %w", err)
	}
	return &Filter{expr: expr, prog: prog}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match reports whether rec satisfies the expression. Evaluation errors,
// such as a missing payload field, count as no match.
func (f *Filter) Match(rec model.Record) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"kind":         string(rec.Kind),
		"vehicle_id":   rec.VehicleID,
		"logical_time": int64(rec.LogicalTime),
		"payload":      payloadValue(rec.Payload),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// payloadValue round-trips the payload through JSON so expressions see
// the same field names as API clients.
func payloadValue(p any) any {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
