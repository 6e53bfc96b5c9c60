package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openai/openai-go/v3"
)

// Registry keeps the mapping between tool names and implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[Name]Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[Name]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry registers get_time and search_docs.
func NewDefaultRegistry(clock *Clock, docs []Document) *Registry {
	r, _ := NewRegistry(NewGetTime(clock), NewSearchDocs(docs))
	return r
}

// Register inserts a tool when its name is known and not in use.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := tool.Name()
	if _, ok := ParseName(string(name)); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get resolves a tool by the name the model used.
func (r *Registry) Get(name string) (Tool, error) {
	n, ok := ParseName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[n]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return tool, nil
}

// Names lists registered tools in a stable order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Name, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Definitions returns the tool schemas offered on the first completion pass.
func (r *Registry) Definitions() []openai.ChatCompletionToolUnionParam {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]openai.ChatCompletionToolUnionParam, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs a tool. Panics inside the tool are reported as errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result, err error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()

	return tool.Call(ctx, args)
}
