package world

import (
	"sort"
	"sync"
)

// ScalarWorld is an in-memory world keeping one scalar per datasource and
// datatarget. Writers set datasources at any time; sensors observe them only
// through the per-step snapshot. Datatarget values added during a step are
// summed and become feedback on Commit. Snapshots, pending writes and
// feedback are kept per agent, so nets sharing the world never see each
// other's half-finished steps.
type ScalarWorld struct {
	mu sync.RWMutex

	sources  map[string]float64
	targets  map[string]bool
	agents   map[string]*agentState
	feedback FeedbackFunc
}

type agentState struct {
	snapshot  map[string]float64
	pending   map[string]float64
	committed map[string]float64
}

// FeedbackFunc derives the feedback for a committed datatarget value.
type FeedbackFunc func(name string, value float64) float64

func NewScalarWorld(sources, targets []string) *ScalarWorld {
	w := &ScalarWorld{
		sources: make(map[string]float64, len(sources)),
		targets: make(map[string]bool, len(targets)),
		agents:  make(map[string]*agentState),
	}
	for _, name := range sources {
		w.sources[name] = 0
	}
	for _, name := range targets {
		w.targets[name] = true
	}
	return w
}

// WithFeedback installs a feedback derivation; without one the committed
// value itself is the feedback.
func (w *ScalarWorld) WithFeedback(fn FeedbackFunc) *ScalarWorld {
	w.mu.Lock()
	w.feedback = fn
	w.mu.Unlock()
	return w
}

// Set updates a datasource. Unknown names are added.
func (w *ScalarWorld) Set(name string, value float64) {
	w.mu.Lock()
	w.sources[name] = value
	w.mu.Unlock()
}

// agent returns the state of agentID, creating it. Callers hold w.mu.
func (w *ScalarWorld) agent(agentID string) *agentState {
	a, ok := w.agents[agentID]
	if !ok {
		a = &agentState{
			snapshot:  make(map[string]float64, len(w.sources)),
			pending:   make(map[string]float64, len(w.targets)),
			committed: make(map[string]float64, len(w.targets)),
		}
		w.agents[agentID] = a
	}
	return a
}

func (w *ScalarWorld) Snapshot(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.agent(agentID)
	for k, v := range w.sources {
		a.snapshot[k] = v
	}
}

func (w *ScalarWorld) Datasource(agentID, name string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if a, ok := w.agents[agentID]; ok {
		if v, ok := a.snapshot[name]; ok {
			return v, true
		}
	}
	_, known := w.sources[name]
	return 0, known
}

func (w *ScalarWorld) AddToDatatarget(agentID, name string, value float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.targets[name] {
		return false
	}
	w.agent(agentID).pending[name] += value
	return true
}

func (w *ScalarWorld) DatatargetFeedback(agentID, name string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.targets[name] {
		return 0, false
	}
	if a, ok := w.agents[agentID]; ok {
		return a.committed[name], true
	}
	return 0, true
}

func (w *ScalarWorld) Commit(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.agent(agentID)
	for name := range w.targets {
		value := a.pending[name]
		if w.feedback != nil {
			value = w.feedback(name, value)
		}
		a.committed[name] = value
		a.pending[name] = 0
	}
}

// Forget drops the state kept for an agent.
func (w *ScalarWorld) Forget(agentID string) {
	w.mu.Lock()
	delete(w.agents, agentID)
	w.mu.Unlock()
}

// Target returns the last committed value of a datatarget summed over all
// agents.
func (w *ScalarWorld) Target(name string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var sum float64
	for _, a := range w.agents {
		sum += a.committed[name]
	}
	return sum
}

// AgentTarget returns the last value one agent committed to a datatarget.
func (w *ScalarWorld) AgentTarget(agentID, name string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if a, ok := w.agents[agentID]; ok {
		return a.committed[name]
	}
	return 0
}

func (w *ScalarWorld) Datasources() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedKeys(w.sources)
}

func (w *ScalarWorld) Datatargets() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedKeys(w.targets)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
