// Package registry provides capability-indexed agent discovery. The
// registry owns the agents; hubs, delegation and the orchestrator resolve
// them by name instead of holding direct references.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/council-runtime/council/pkg/agent"
)

// ErrAgentExists is returned when registering a name twice.
var ErrAgentExists = errors.New("registry: agent already registered")

// ErrAgentNotFound is returned for lookups of unknown agents.
var ErrAgentNotFound = errors.New("registry: agent not found")

type entry struct {
	agent        agent.Agent
	capabilities map[string]bool
	available    bool
}

// Registry indexes agents by name and by capability. Both indexes are
// guarded by one mutex so they can never diverge.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*entry
	byCap  map[string]map[string]bool // capability → set of names
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byCap:  make(map[string]map[string]bool),
	}
}

// Register adds an agent with the given capabilities. Agents register as
// available. Registering an existing name fails.
func (r *Registry) Register(a agent.Agent, capabilities ...string) error {
	name := a.Profile().Name
	if name == "" {
		return fmt.Errorf("registry: agent has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrAgentExists, name)
	}
	e := &entry{agent: a, capabilities: make(map[string]bool, len(capabilities)), available: true}
	for _, c := range capabilities {
		e.capabilities[c] = true
		if r.byCap[c] == nil {
			r.byCap[c] = make(map[string]bool)
		}
		r.byCap[c][name] = true
	}
	r.byName[name] = e
	return nil
}

// Unregister removes an agent and purges it from every capability bucket.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	for c := range e.capabilities {
		delete(r.byCap[c], name)
		if len(r.byCap[c]) == 0 {
			delete(r.byCap, c)
		}
	}
	delete(r.byName, name)
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return e.agent, nil
}

// FindByCapability returns the available agents holding capability,
// sorted by name for deterministic ordering.
func (r *Registry) FindByCapability(capability string) []agent.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byCap[capability]))
	for name := range r.byCap[capability] {
		if e := r.byName[name]; e != nil && e.available {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	agents := make([]agent.Agent, 0, len(names))
	for _, name := range names {
		agents = append(agents, r.byName[name].agent)
	}
	return agents
}

// ListAvailable returns the names of all available agents, sorted.
func (r *Registry) ListAvailable() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name, e := range r.byName {
		if e.available {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SetAvailability marks an agent available or unavailable.
func (r *Registry) SetAvailability(name string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	e.available = available
	return nil
}

// CanDelegateTo checks whether from may hand work to the named target.
// The boolean is accompanied by a human-readable reason on refusal.
func (r *Registry) CanDelegateTo(from agent.Profile, toName string) (bool, string) {
	if !from.AllowDelegation {
		return false, fmt.Sprintf("agent %s is not allowed to delegate", from.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[toName]
	if !ok {
		return false, fmt.Sprintf("target agent %s is not registered", toName)
	}
	if !e.available {
		return false, fmt.Sprintf("target agent %s is not available", toName)
	}
	if len(from.AllowedAgents) > 0 {
		allowed := false
		for _, name := range from.AllowedAgents {
			if name == toName {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, fmt.Sprintf("agent %s may not delegate to %s", from.Name, toName)
		}
	}
	return true, ""
}

// Stats summarises the registry contents.
type Stats struct {
	TotalAgents     int            `json:"total_agents"`
	AvailableAgents int            `json:"available_agents"`
	Capabilities    map[string]int `json:"capabilities"`
}

// GetStats returns a snapshot of registry counts.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		TotalAgents:  len(r.byName),
		Capabilities: make(map[string]int, len(r.byCap)),
	}
	for _, e := range r.byName {
		if e.available {
			s.AvailableAgents++
		}
	}
	for c, names := range r.byCap {
		s.Capabilities[c] = len(names)
	}
	return s
}
