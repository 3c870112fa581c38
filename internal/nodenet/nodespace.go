package nodenet

import (
	"fmt"
	"sort"

	"nodenet/internal/model"
)

// DirectionalGateTypes are the gate types a nodespace can bind directional
// activators for. Other gate names may be bound as well.
var DirectionalGateTypes = []string{"por", "ret", "sub", "sur", "cat", "exp", "sym", "ref"}

type nodespace struct {
	id       string
	name     string
	position []float64
	parent   string
	index    int

	children map[string]bool
	nodes    map[string]bool

	// gate type -> bound Activator node id
	activators map[string]string
	// gate type -> directional activator value
	activatorValues map[string]float64
}

func newNodespace(id, name, parent string, position []float64, index int) *nodespace {
	return &nodespace{
		id:              id,
		name:            name,
		position:        append([]float64(nil), position...),
		parent:          parent,
		index:           index,
		children:        make(map[string]bool),
		nodes:           make(map[string]bool),
		activators:      make(map[string]string),
		activatorValues: make(map[string]float64),
	}
}

// gateFactor is the multiplier applied to gates of gateType for nodes
// directly contained in this nodespace.
func (ns *nodespace) gateFactor(gateType string) float64 {
	if v, ok := ns.activatorValues[gateType]; ok {
		return v
	}
	return 1
}

// NodespaceInfo describes a nodespace.
type NodespaceInfo struct {
	ID         string
	Name       string
	Position   []float64
	Parent     string
	Index      int
	Nodes      []string
	Nodespaces []string
	Activators map[string]string
}

// CreateNodespace adds a child nodespace under parent. An empty id is
// generated.
func (n *Net) CreateNodespace(parent, name, id string, position []float64) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.createNodespace(parent, name, id, position, -1)
}

func (n *Net) createNodespace(parent, name, id string, position []float64, index int) (string, error) {
	p, ok := n.nodespaces[parent]
	if !ok {
		return "", fmt.Errorf("%w: nodespace %s", ErrNotFound, parent)
	}
	if id == "" {
		id = n.nextNodespaceID()
	} else if _, exists := n.nodespaces[id]; exists {
		return "", fmt.Errorf("%w: nodespace %s", ErrDuplicateID, id)
	}
	if index < 0 {
		index = n.nextIndex()
	} else if index >= n.indexCounter {
		n.indexCounter = index + 1
	}
	if name == "" {
		name = id
	}
	n.nodespaces[id] = newNodespace(id, name, parent, position, index)
	p.children[id] = true
	n.changes.nodespaceChanged(n.stepCount+1, id)
	return id, nil
}

func (n *Net) nextNodespaceID() string {
	for {
		n.nsCounter++
		id := fmt.Sprintf("s%04d", n.nsCounter)
		if _, exists := n.nodespaces[id]; !exists {
			return id
		}
	}
}

// DeleteNodespace removes a nodespace with every node and nodespace it
// contains.
func (n *Net) DeleteNodespace(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if id == model.RootNodespace {
		return ErrRootNodespace
	}
	if _, ok := n.nodespaces[id]; !ok {
		return fmt.Errorf("%w: nodespace %s", ErrNotFound, id)
	}
	return n.deleteNodespace(id)
}

func (n *Net) deleteNodespace(id string) error {
	ns := n.nodespaces[id]
	for _, child := range sortedSet(ns.children) {
		if err := n.deleteNodespace(child); err != nil {
			return err
		}
	}
	for _, nodeID := range sortedSet(ns.nodes) {
		if err := n.deleteNode(nodeID); err != nil {
			return err
		}
	}
	if parent, ok := n.nodespaces[ns.parent]; ok {
		delete(parent.children, id)
	}
	delete(n.nodespaces, id)
	n.changes.nodespaceDeleted(n.stepCount+1, id)
	return nil
}

func (n *Net) Nodespace(id string) (NodespaceInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	ns, ok := n.nodespaces[id]
	if !ok {
		return NodespaceInfo{}, fmt.Errorf("%w: nodespace %s", ErrNotFound, id)
	}
	activators := make(map[string]string, len(ns.activators))
	for k, v := range ns.activators {
		activators[k] = v
	}
	return NodespaceInfo{
		ID:         ns.id,
		Name:       ns.name,
		Position:   append([]float64(nil), ns.position...),
		Parent:     ns.parent,
		Index:      ns.index,
		Nodes:      sortedSet(ns.nodes),
		Nodespaces: sortedSet(ns.children),
		Activators: activators,
	}, nil
}

func (n *Net) NodespaceIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	ids := make([]string, 0, len(n.nodespaces))
	for id := range n.nodespaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetActivatorValue sets the directional activator of gateType in a
// nodespace. A value of 0 closes those gates for the nodespace's nodes.
func (n *Net) SetActivatorValue(nodespaceID, gateType string, value float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	ns, ok := n.nodespaces[nodespaceID]
	if !ok {
		return fmt.Errorf("%w: nodespace %s", ErrNotFound, nodespaceID)
	}
	ns.activatorValues[gateType] = value
	n.changes.nodespaceChanged(n.stepCount+1, nodespaceID)
	return nil
}

// ActivatorValue returns the directional activator of gateType; ok is false
// when none is set, in which case gates use a factor of 1.
func (n *Net) ActivatorValue(nodespaceID, gateType string) (float64, bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	ns, ok := n.nodespaces[nodespaceID]
	if !ok {
		return 0, false, fmt.Errorf("%w: nodespace %s", ErrNotFound, nodespaceID)
	}
	v, set := ns.activatorValues[gateType]
	return v, set, nil
}

// UnsetActivatorValue reopens gates of gateType in the nodespace.
func (n *Net) UnsetActivatorValue(nodespaceID, gateType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	ns, ok := n.nodespaces[nodespaceID]
	if !ok {
		return fmt.Errorf("%w: nodespace %s", ErrNotFound, nodespaceID)
	}
	delete(ns.activatorValues, gateType)
	n.changes.nodespaceChanged(n.stepCount+1, nodespaceID)
	return nil
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
