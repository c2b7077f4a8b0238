package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quantops/qubot/internal/providers"
)

// Param declares one typed tool parameter.
type Param struct {
	Name        string
	Type        string // string, integer, boolean, array, object
	Required    bool
	Enum        []string
	Default     any
	Description string
}

// Tool is one registered capability.
type Tool interface {
	Name() string
	Description() string
	Params() []Param
	Execute(ctx context.Context, args map[string]any) *Result
}

// Registry is the process-wide name → Tool map.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool, replacing any previous one with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Schemas returns JSON-Schema function descriptions for the named tools.
// Unknown names are skipped. An empty slice of names means all tools.
func (r *Registry) Schemas(names []string) []providers.ToolDefinition {
	if len(names) == 0 {
		names = r.Names()
	}
	var out []providers.ToolDefinition
	for _, name := range names {
		t := r.Get(name)
		if t == nil {
			continue
		}
		out = append(out, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  Schema(t.Params()),
		})
	}
	return out
}

// Execute validates the arguments and runs the tool. Failures of any kind
// come back as a failed Result, never as a panic or error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	t := r.Get(name)
	if t == nil {
		return Fail("unknown tool %q", name)
	}
	if err := Validate(t.Params(), args); err != nil {
		return Fail("invalid arguments for %s: %v", name, err)
	}
	return t.Execute(ctx, args)
}

// Schema converts parameter declarations into a JSON-Schema object.
func Schema(params []Param) map[string]any {
	props := map[string]any{}
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Validate checks required presence, types, and enum membership, and fills
// missing optional values with their defaults (mutating args).
func Validate(params []Param, args map[string]any) error {
	for _, p := range params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			if p.Default != nil {
				args[p.Name] = p.Default
			}
			continue
		}
		if !typeOK(p.Type, v) {
			return fmt.Errorf("parameter %q must be %s", p.Name, p.Type)
		}
		if len(p.Enum) > 0 {
			s, _ := v.(string)
			ok := false
			for _, e := range p.Enum {
				if s == e {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("parameter %q must be one of %v", p.Name, p.Enum)
			}
		}
	}
	return nil
}

func typeOK(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer":
		// JSON numbers decode to float64; accept whole floats and ints.
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}
