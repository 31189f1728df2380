// Package tools holds the functions agents may call during a tool loop.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/llm"
	"github.com/rogers-f/deliberate/internal/metrics"
)

// Tool is a callable function exposed to a model.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON Schema of the arguments object.
	Schema() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry is a thread-safe set of tools keyed by name.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	Metrics *metrics.Recorder
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return domain.NewEngineError(domain.ErrToolFailure.Code, fmt.Sprintf("tool %q already registered", t.Name()))
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the named tool, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.WrapEngineError(domain.ErrToolNotFound.Code, "lookup", fmt.Errorf("no tool named %q", name))
	}
	return t, nil
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns model-facing declarations for the named tools, or for all
// tools when names is empty. Unknown names are reported.
func (r *Registry) Specs(names ...string) ([]llm.ToolSpec, error) {
	if len(names) == 0 {
		names = r.List()
	}
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		t, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, llm.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return specs, nil
}

// Call runs the named tool. Failures are wrapped as ErrToolFailure.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	t, err := r.Get(name)
	if err != nil {
		r.Metrics.ObserveTool(name, err)
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.Call(ctx, args)
	r.Metrics.ObserveTool(name, err)
	if err != nil {
		return "", domain.WrapEngineError(domain.ErrToolFailure.Code, name, err)
	}
	return out, nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func numberArg(args map[string]any, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
			return 0, fmt.Errorf("argument %q must be a number", key)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("missing argument %q", key)
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}
