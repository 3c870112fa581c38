// Package nodenet implements the node net engine: array-backed entity
// storage, gate arithmetic, the propagate/calculate step cycle, directional
// activators, locks, monitors and snapshots.
package nodenet

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nodenet/internal/model"
	"nodenet/internal/nodetype"
	"nodenet/internal/world"
)

const defaultHistorySteps = 100

type Options struct {
	UID      string
	Name     string
	Owner    string
	Registry *nodetype.Registry
	World    world.Adapter
	Logger   zerolog.Logger

	InitialNodes    int
	InitialElements int
	// HistorySteps bounds how far back Changes can look and how many
	// values a monitor keeps.
	HistorySteps int
	// Operators are installed next to propagation and calculation.
	Operators []StepOperator
}

// Status reports whether a net is running and why it last stopped.
type Status struct {
	Active        bool   `json:"active"`
	Step          int    `json:"step"`
	LastError     string `json:"last_error,omitempty"`
	StoppedAtStep int    `json:"stopped_at_step,omitempty"`
}

// Net is one node net. All graph edits and steps are serialized by the net
// lock; readers take the lock shared and never observe a half-applied step.
type Net struct {
	mu sync.RWMutex

	uid      string
	name     string
	owner    string
	registry *nodetype.Registry
	world    world.Adapter
	logger   zerolog.Logger

	store      *elementStore
	nodespaces map[string]*nodespace

	stepCount    int
	indexCounter int
	nsCounter    int

	operators      []StepOperator
	locks          map[string]lockEntry
	pendingUnlocks []string
	modulators     map[string]float64
	monitors       map[string]*monitor
	changes        *changeLog

	active    bool
	lastErr   error
	stoppedAt int
}

func New(opts Options) (*Net, error) {
	if opts.Registry == nil {
		return nil, errors.New("node type registry is required")
	}
	uid := opts.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	history := opts.HistorySteps
	if history <= 0 {
		history = defaultHistorySteps
	}
	name := opts.Name
	if name == "" {
		name = uid
	}

	n := &Net{
		uid:        uid,
		name:       name,
		owner:      opts.Owner,
		registry:   opts.Registry,
		world:      opts.World,
		logger:     opts.Logger.With().Str("nodenet", uid).Logger(),
		store:      newElementStore(opts.InitialNodes, opts.InitialElements),
		nodespaces: make(map[string]*nodespace),
		locks:      make(map[string]lockEntry),
		modulators: make(map[string]float64),
		monitors:   make(map[string]*monitor),
		changes:    newChangeLog(history),
	}
	n.nodespaces[model.RootNodespace] = newNodespace(model.RootNodespace, model.RootNodespace, "", nil, n.nextIndex())
	n.operators = []StepOperator{propagateOperator{}, calculateOperator{}}
	for _, op := range opts.Operators {
		if err := n.addStepOperator(op); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (n *Net) UID() string {
	return n.uid
}

func (n *Net) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Net) Owner() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.owner
}

func (n *Net) Rename(name string) {
	n.mu.Lock()
	n.name = name
	n.mu.Unlock()
}

// CurrentStep is the number of completed steps.
func (n *Net) CurrentStep() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stepCount
}

func (n *Net) Registry() *nodetype.Registry {
	return n.registry
}

func (n *Net) Logger() *zerolog.Logger {
	return &n.logger
}

// SetWorld replaces the world adapter used by Sensor and Actor nodes.
func (n *Net) SetWorld(w world.Adapter) {
	n.mu.Lock()
	n.world = w
	n.mu.Unlock()
}

// SetActive records whether a run loop is auto-stepping this net. Marking
// a net active clears the previous stop reason.
func (n *Net) SetActive(active bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = active
	if active {
		n.lastErr = nil
		n.stoppedAt = 0
	} else if n.stoppedAt == 0 {
		n.stoppedAt = n.stepCount
	}
}

func (n *Net) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	status := Status{Active: n.active, Step: n.stepCount, StoppedAtStep: n.stoppedAt}
	if n.lastErr != nil {
		status.LastError = n.lastErr.Error()
	}
	return status
}

// LastError returns the error that stopped the net, if any.
func (n *Net) LastError() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastErr
}

// Counts reports the number of nodes, links and nodespaces.
func (n *Net) Counts() (nodes, links, nodespaces int) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.store.nodeCount(), n.store.weights.nnz, len(n.nodespaces)
}

// Capacity reports the allocated node and element table sizes.
func (n *Net) Capacity() (nodes, elements int) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.store.nodeCapacity(), n.store.elementCapacity()
}

func (n *Net) SetModulator(name string, value float64) {
	n.mu.Lock()
	n.modulators[name] = value
	n.mu.Unlock()
}

func (n *Net) ChangeModulator(name string, diff float64) {
	n.mu.Lock()
	n.modulators[name] += diff
	n.mu.Unlock()
}

func (n *Net) Modulator(name string) (float64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.modulators[name]
	return v, ok
}

func (n *Net) Modulators() map[string]float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]float64, len(n.modulators))
	for k, v := range n.modulators {
		out[k] = v
	}
	return out
}

func (n *Net) nextIndex() int {
	idx := n.indexCounter
	n.indexCounter++
	return idx
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
