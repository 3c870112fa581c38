package nodenet

import (
	"fmt"
	"sort"

	"nodenet/internal/model"
)

// Link is a directed weighted edge from a gate to a slot. A link whose
// weight is set to zero no longer exists.
type Link struct {
	ID         string
	SourceNode string
	SourceGate string
	TargetNode string
	TargetSlot string
	Weight     float64
	Certainty  float64
}

func (n *Net) linkAt(target, source int, weight float64) Link {
	st := n.store
	srcNode := st.nodeIDs[st.elemNode[source]]
	tgtNode := st.nodeIDs[st.elemNode[target]]
	gate := st.gateName(source)
	slot := st.slotName(target)
	certainty, ok := st.certainty[[2]int{target, source}]
	if !ok {
		certainty = 1
	}
	return Link{
		ID:         model.LinkID(srcNode, gate, slot, tgtNode),
		SourceNode: srcNode,
		SourceGate: gate,
		TargetNode: tgtNode,
		TargetSlot: slot,
		Weight:     weight,
		Certainty:  certainty,
	}
}

// endpoints resolves the gate and slot elements a link would connect.
func (n *Net) endpoints(sourceNode, sourceGate, targetNode, targetSlot string) (source, target int, err error) {
	st := n.store
	srcIdx, err := n.node(sourceNode)
	if err != nil {
		return -1, -1, err
	}
	tgtIdx, err := n.node(targetNode)
	if err != nil {
		return -1, -1, err
	}
	source, ok := st.gateElement(srcIdx, sourceGate)
	if !ok {
		return -1, -1, fmt.Errorf("%w: %s on node %s", ErrUnknownGate, sourceGate, sourceNode)
	}
	target, ok = st.slotElement(tgtIdx, targetSlot)
	if !ok {
		return -1, -1, fmt.Errorf("%w: %s on node %s", ErrUnknownSlot, targetSlot, targetNode)
	}
	return source, target, nil
}

// CreateLink connects a gate to a slot, or updates the weight and certainty
// of the existing link between them. A weight of zero removes the link.
func (n *Net) CreateLink(sourceNode, sourceGate, targetNode, targetSlot string, weight, certainty float64) (Link, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.createLink(sourceNode, sourceGate, targetNode, targetSlot, weight, certainty)
}

func (n *Net) createLink(sourceNode, sourceGate, targetNode, targetSlot string, weight, certainty float64) (Link, error) {
	source, target, err := n.endpoints(sourceNode, sourceGate, targetNode, targetSlot)
	if err != nil {
		return Link{}, err
	}
	st := n.store
	id := model.LinkID(sourceNode, sourceGate, targetSlot, targetNode)
	existed := st.weights.set(target, source, weight)
	key := [2]int{target, source}
	if weight == 0 {
		delete(st.certainty, key)
		if existed {
			n.changes.linkDeleted(n.stepCount+1, id)
		}
	} else {
		st.certainty[key] = certainty
		n.changes.linkChanged(n.stepCount+1, id)
	}
	return Link{
		ID:         id,
		SourceNode: sourceNode,
		SourceGate: sourceGate,
		TargetNode: targetNode,
		TargetSlot: targetSlot,
		Weight:     weight,
		Certainty:  certainty,
	}, nil
}

func (n *Net) DeleteLink(sourceNode, sourceGate, targetNode, targetSlot string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	source, target, err := n.endpoints(sourceNode, sourceGate, targetNode, targetSlot)
	if err != nil {
		return err
	}
	id := model.LinkID(sourceNode, sourceGate, targetSlot, targetNode)
	if !n.store.weights.remove(target, source) {
		return fmt.Errorf("%w: link %s", ErrNotFound, id)
	}
	delete(n.store.certainty, [2]int{target, source})
	n.changes.linkDeleted(n.stepCount+1, id)
	return nil
}

// SetLinkWeight changes the weight of an existing link.
func (n *Net) SetLinkWeight(sourceNode, sourceGate, targetNode, targetSlot string, weight float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	source, target, err := n.endpoints(sourceNode, sourceGate, targetNode, targetSlot)
	if err != nil {
		return err
	}
	st := n.store
	if _, ok := st.weights.get(target, source); !ok {
		return fmt.Errorf("%w: link %s", ErrNotFound, model.LinkID(sourceNode, sourceGate, targetSlot, targetNode))
	}
	certainty, ok := st.certainty[[2]int{target, source}]
	if !ok {
		certainty = 1
	}
	_, err = n.createLink(sourceNode, sourceGate, targetNode, targetSlot, weight, certainty)
	return err
}

func (n *Net) Link(sourceNode, sourceGate, targetNode, targetSlot string) (Link, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	source, target, err := n.endpoints(sourceNode, sourceGate, targetNode, targetSlot)
	if err != nil {
		return Link{}, err
	}
	weight, ok := n.store.weights.get(target, source)
	if !ok {
		return Link{}, fmt.Errorf("%w: link %s", ErrNotFound, model.LinkID(sourceNode, sourceGate, targetSlot, targetNode))
	}
	return n.linkAt(target, source, weight), nil
}

// Links returns every link sorted by id.
func (n *Net) Links() []Link {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.links(nil)
}

// NodeLinks returns the links touching a node sorted by id.
func (n *Net) NodeLinks(id string) ([]Link, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	idx, err := n.node(id)
	if err != nil {
		return nil, err
	}
	return n.links(map[int]bool{idx: true}), nil
}

// links collects links touching any node in nodes, or all links when
// nodes is nil.
func (n *Net) links(nodes map[int]bool) []Link {
	st := n.store
	out := make([]Link, 0)
	for _, target := range st.weights.targetRows() {
		for _, entry := range st.weights.incoming(target) {
			if nodes != nil && !nodes[st.elemNode[target]] && !nodes[st.elemNode[entry.index]] {
				continue
			}
			out = append(out, n.linkAt(target, entry.index, entry.weight))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (n *Net) LinkCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.store.weights.nnz
}

// unlinkCompletely removes every link into or out of node idx. It is a
// no-op for a node without links.
func (n *Net) unlinkCompletely(idx int) {
	st := n.store
	off := st.nodeOffset[idx]
	for e := off; e < off+st.nodeTypes[idx].ElementCount(); e++ {
		for _, entry := range st.weights.outgoing(e) {
			n.changes.linkDeleted(n.stepCount+1, n.linkAt(entry.index, e, entry.weight).ID)
			delete(st.certainty, [2]int{entry.index, e})
		}
		st.weights.clearCol(e)
		for _, entry := range st.weights.incoming(e) {
			n.changes.linkDeleted(n.stepCount+1, n.linkAt(e, entry.index, entry.weight).ID)
			delete(st.certainty, [2]int{e, entry.index})
		}
		st.weights.clearRow(e)
	}
}
