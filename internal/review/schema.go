package review

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rogers-f/deliberate/internal/domain"
)

// FieldKind is the expected JSON shape of a field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindStringList
	KindDecision
)

// Field describes one required output field.
type Field struct {
	Name     string
	Kind     FieldKind
	Aliases  []string
	NonEmpty bool
}

// Schema is the output contract of one agent.
type Schema struct {
	Agent  domain.AgentID
	Fields []Field
}

// Output holds validated, canonically named fields.
type Output map[string]any

// String returns a string field.
func (o Output) String(name string) string {
	s, _ := o[name].(string)
	return s
}

// List returns a string-list field.
func (o Output) List(name string) []string {
	l, _ := o[name].([]string)
	return l
}

// Decision returns a normalized critic decision.
func (o Output) Decision(name string) domain.Decision {
	d, _ := o[name].(domain.Decision)
	return d
}

var (
	PlannerSchema = Schema{Agent: domain.AgentPlanner, Fields: []Field{
		{Name: "research_steps", Kind: KindStringList},
		{Name: "expert_steps", Kind: KindStringList},
	}}
	ResearcherSchema = Schema{Agent: domain.AgentResearcher, Fields: []Field{
		{Name: "result", Kind: KindString, NonEmpty: true, Aliases: []string{"research_result"}},
	}}
	ExpertSchema = Schema{Agent: domain.AgentExpert, Fields: []Field{
		{Name: "answer", Kind: KindString, NonEmpty: true, Aliases: []string{"expert_answer"}},
		{Name: "reasoning", Kind: KindString, Aliases: []string{"reasoning_trace", "expert_reasoning"}},
	}}
	CriticSchema = Schema{Agent: domain.AgentCritic, Fields: []Field{
		{Name: "decision", Kind: KindDecision},
		{Name: "feedback", Kind: KindString},
	}}
	FinalizerSchema = Schema{Agent: domain.AgentFinalizer, Fields: []Field{
		{Name: "final_answer", Kind: KindString, NonEmpty: true},
		{Name: "final_reasoning", Kind: KindString, Aliases: []string{"final_reasoning_trace", "reasoning_trace"}},
	}}
)

// Parse extracts an object from raw model output and validates it.
func (s Schema) Parse(raw string) (Output, error) {
	fields, err := Extract(raw)
	if err != nil {
		return nil, &domain.SchemaViolation{Agent: s.Agent, Missing: s.names(), Detail: err.Error()}
	}
	return s.Validate(fields)
}

// Validate checks fields against the schema and returns every violation at
// once as a *domain.SchemaViolation.
func (s Schema) Validate(fields map[string]any) (Output, error) {
	out := Output{}
	var missing, violations []string

	for _, f := range s.Fields {
		raw, ok := lookup(fields, f)
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		v, err := coerce(f, raw)
		if err != nil {
			violations = append(violations, err.Error())
			continue
		}
		out[f.Name] = v
	}

	if len(missing) > 0 || len(violations) > 0 {
		return nil, &domain.SchemaViolation{
			Agent:   s.Agent,
			Missing: missing,
			Detail:  strings.Join(violations, "; "),
		}
	}
	return out, nil
}

func (s Schema) names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// JSONSchema renders the schema as a JSON Schema object, for providers that
// accept a declared output shape.
func (s Schema) JSONSchema() map[string]any {
	props := map[string]any{}
	required := s.names()
	for _, f := range s.Fields {
		switch f.Kind {
		case KindStringList:
			props[f.Name] = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		case KindDecision:
			props[f.Name] = map[string]any{"type": "string", "enum": []string{"approve", "reject"}}
		default:
			props[f.Name] = map[string]any{"type": "string"}
		}
	}
	sort.Strings(required)
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func lookup(fields map[string]any, f Field) (any, bool) {
	if v, ok := fields[f.Name]; ok && v != nil {
		return v, true
	}
	for _, a := range f.Aliases {
		if v, ok := fields[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func coerce(f Field, raw any) (any, error) {
	switch f.Kind {
	case KindStringList:
		return toList(f.Name, raw)
	case KindDecision:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", f.Name)
		}
		return NormalizeDecision(s)
	default:
		s, ok := scalarString(raw)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", f.Name)
		}
		if f.NonEmpty && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%s must be non-empty", f.Name)
		}
		return s, nil
	}
}

func toList(name string, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := scalarString(item)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []string:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}, nil
		}
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings", name)
	}
}

// scalarString accepts strings and renders numbers and booleans, since
// models often answer numeric questions with a bare number.
func scalarString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
