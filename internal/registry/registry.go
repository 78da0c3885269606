// Package registry maps tool names to shared tool handles for a workspace
// or a filtered subagent view.
package registry

import (
	"sync"

	"github.com/agentbridge/core/pkg/tool"
)

// Lookup is the read-side contract shared by Registry and any filtered
// projection of it (see internal/subagent.FilteredRegistry), letting the
// agent loop and the subagent orchestrator treat both uniformly.
type Lookup interface {
	Get(name string) (tool.Tool, bool)
	ListDefinitions() []tool.Definition
}

// Registry is a single-writer, many-reader mapping from tool name to
// shared tool handle. Mutations are serialized; reads never block other
// reads.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tool.Tool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]tool.Tool)}
}

// Register adds t under t.Name(), replacing any prior tool with that name.
func (r *Registry) Register(t tool.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes the tool with the given name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// ListDefinitions returns a snapshot of tool definitions suitable for
// sending to an LLM. Later mutations to the registry do not affect the
// returned slice.
func (r *Registry) ListDefinitions() []tool.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]tool.Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, tool.DefinitionOf(t))
	}
	return defs
}
