// Package tools implements the agentbus tool catalog: argument validation,
// dispatch to the coordination service, and result formatting.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Param declares one tool argument.
type Param struct {
	Name        string
	Type        string // "string" or "boolean"
	Description string
	Required    bool
}

// Tool describes a callable tool.
type Tool struct {
	Name        string
	Description string
	Params      []Param
}

// InputSchema renders the tool's arguments as a JSON Schema object.
func (t Tool) InputSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(t.Params)),
	}
	for _, p := range t.Params {
		s.Properties[p.Name] = &jsonschema.Schema{Type: p.Type, Description: p.Description}
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// Result is the outcome of a tool call. Failures are results, not errors.
type Result struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

func okResult(format string, args ...any) Result {
	return Result{Text: fmt.Sprintf(format, args...)}
}

func errResult(err error) Result {
	return Result{Text: err.Error(), IsError: true}
}

// Executor runs a tool call with validated arguments.
type Executor interface {
	Execute(ctx context.Context, args Args) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, args Args) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, args Args) (Result, error) { return f(ctx, args) }

// Registry manages tool executors and dispatches tool calls.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	tools     map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		tools:     make(map[string]Tool),
	}
}

// Register adds a tool executor to the registry.
func (r *Registry) Register(tool Tool, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[tool.Name] = executor
	r.tools[tool.Name] = tool
}

// Execute validates the required arguments and dispatches the call. An
// executor error becomes an error result.
func (r *Registry) Execute(ctx context.Context, name string, raw map[string]any) Result {
	r.mu.RLock()
	executor, ok := r.executors[name]
	tool := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return Result{Text: fmt.Sprintf("unknown tool %q", name), IsError: true}
	}
	args := Args(raw)
	for _, p := range tool.Params {
		if err := args.check(p); err != nil {
			return errResult(err)
		}
	}
	res, err := executor.Execute(ctx, args)
	if err != nil {
		return errResult(err)
	}
	return res
}

// Definitions returns all registered tools sorted by name.
func (r *Registry) Definitions() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Args is a tool call's argument map.
type Args map[string]any

func (a Args) check(p Param) error {
	v, present := a[p.Name]
	if !present || v == nil {
		if p.Required {
			return fmt.Errorf("missing required argument %q", p.Name)
		}
		return nil
	}
	switch p.Type {
	case "boolean":
		if _, err := a.Bool(p.Name); err != nil {
			return err
		}
	default:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("argument %q must be a string", p.Name)
		}
		if p.Required && strings.TrimSpace(s) == "" {
			return fmt.Errorf("missing required argument %q", p.Name)
		}
	}
	return nil
}

// String returns the named string argument, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Bool returns the named boolean argument. JSON booleans and the strings
// "true" and "false" are accepted; an absent argument is false.
func (a Args) Bool(name string) (bool, error) {
	switch v := a[name].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("argument %q must be a boolean", name)
}
