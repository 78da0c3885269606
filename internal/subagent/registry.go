package subagent

import (
	"strings"
	"sync"

	"github.com/agentbridge/core/internal/policy"
	"github.com/agentbridge/core/internal/registry"
	"github.com/agentbridge/core/pkg/tool"
)

// DefinitionRegistry maps agent_type to its Definition. Mutation is
// serialized; reads are concurrent, mirroring internal/registry.Registry.
type DefinitionRegistry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
}

// NewDefinitionRegistry returns an empty registry.
func NewDefinitionRegistry() *DefinitionRegistry {
	return &DefinitionRegistry{defs: make(map[string]Definition)}
}

// Register validates and adds d, replacing any prior definition with the
// same AgentType.
func (r *DefinitionRegistry) Register(d Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[d.AgentType] = d
	return nil
}

// Get looks up a definition by agent type.
func (r *DefinitionRegistry) Get(agentType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[agentType]
	return d, ok
}

// FilteredRegistry wraps a parent registry.Lookup and applies an
// allow/deny projection at Get and ListDefinitions time. The projection is
// lazy: a tool registered on the parent after the filter was constructed
// is visible through the filter if it passes. Denylist always takes
// precedence over the allowlist. A FilteredRegistry itself satisfies
// registry.Lookup, so nesting subagents (a child spawning a grandchild)
// filters again from the already-filtered parent view.
type FilteredRegistry struct {
	parent  registry.Lookup
	allowed []string // nil means "no allowlist restriction"
	denied  []string
}

// NewFilteredRegistry builds a lazy projection of parent. A nil allowed
// slice means every tool not denied is visible.
func NewFilteredRegistry(parent registry.Lookup, allowed, denied []string) *FilteredRegistry {
	return &FilteredRegistry{parent: parent, allowed: allowed, denied: denied}
}

func (f *FilteredRegistry) passes(name string) bool {
	for _, pattern := range f.denied {
		if matchName(pattern, name) {
			return false
		}
	}
	if f.allowed == nil {
		return true
	}
	for _, pattern := range f.allowed {
		if matchName(pattern, name) {
			return true
		}
	}
	return false
}

func matchName(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if strings.Contains(pattern, "*") {
		return policy.MatchGlob(pattern, name)
	}
	return false
}

// Get returns the parent's tool for name if it exists and passes the
// filter.
func (f *FilteredRegistry) Get(name string) (tool.Tool, bool) {
	if !f.passes(name) {
		return nil, false
	}
	return f.parent.Get(name)
}

// ListDefinitions snapshots the parent's definitions and keeps only those
// that pass the filter.
func (f *FilteredRegistry) ListDefinitions() []tool.Definition {
	all := f.parent.ListDefinitions()
	out := make([]tool.Definition, 0, len(all))
	for _, d := range all {
		if f.passes(d.Name) {
			out = append(out, d)
		}
	}
	return out
}
