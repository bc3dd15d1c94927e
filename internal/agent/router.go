package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Strategy names a registered agent.
const (
	StrategyGUI  = "gui"
	StrategyCode = "code"
)

// Router maps strategy names to agents. It is built once at startup.
type Router struct {
	agents map[string]Agent
	mu     sync.RWMutex
}

func NewRouter() *Router {
	return &Router{agents: make(map[string]Agent)}
}

// Register adds or replaces the agent for a strategy.
func (r *Router) Register(strategy string, ag Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[strategy] = ag
}

// Get returns the agent for a strategy.
func (r *Router) Get(strategy string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ag, ok := r.agents[strategy]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", strategy)
	}
	return ag, nil
}

// Remove removes a strategy.
func (r *Router) Remove(strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, strategy)
}

// List returns the registered strategies, sorted.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Other returns the fallback strategy for s, if one is registered.
func (r *Router) Other(s string) (string, bool) {
	other := StrategyCode
	if s == StrategyCode {
		other = StrategyGUI
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[other]
	return other, ok
}
