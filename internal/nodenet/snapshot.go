package nodenet

import (
	"fmt"
	"sort"

	"nodenet/internal/model"
	"nodenet/internal/nodetype"
)

// Export returns the persisted form of the net. Gate parameters and gate
// functions are recorded only where they differ from the type defaults.
func (n *Net) Export() model.NodenetRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()

	st := n.store
	rec := model.NodenetRecord{
		Version:    model.SnapshotVersion,
		UID:        n.uid,
		Name:       n.name,
		Owner:      n.owner,
		Step:       n.stepCount,
		Nodes:      make(map[string]model.NodeRecord, st.nodeCount()),
		Links:      make(map[string]model.LinkRecord, st.weights.nnz),
		Nodespaces: make(map[string]model.NodespaceRecord, len(n.nodespaces)),
		Monitors:   make(map[string]model.MonitorRecord, len(n.monitors)),
		Modulators: make(map[string]float64, len(n.modulators)),
	}
	for id, ns := range n.nodespaces {
		rec.Nodespaces[id] = nodespaceRecord(ns)
	}
	for _, idx := range st.liveNodes() {
		rec.Nodes[st.nodeIDs[idx]] = n.nodeRecord(idx)
	}
	for _, l := range n.links(nil) {
		rec.Links[l.ID] = linkRecord(l)
	}
	for uid, m := range n.monitors {
		rec.Monitors[uid] = copyMonitor(m.rec)
	}
	for k, v := range n.modulators {
		rec.Modulators[k] = v
	}
	return rec
}

func nodespaceRecord(ns *nodespace) model.NodespaceRecord {
	rec := model.NodespaceRecord{
		Name:            ns.name,
		Position:        append([]float64(nil), ns.position...),
		ParentNodespace: ns.parent,
		Index:           ns.index,
	}
	if len(ns.activatorValues) > 0 {
		rec.ActivatorValues = make(map[string]float64, len(ns.activatorValues))
		for k, v := range ns.activatorValues {
			rec.ActivatorValues[k] = v
		}
	}
	return rec
}

func linkRecord(l Link) model.LinkRecord {
	return model.LinkRecord{
		SourceNodeUID:  l.SourceNode,
		SourceGateName: l.SourceGate,
		TargetNodeUID:  l.TargetNode,
		TargetSlotName: l.TargetSlot,
		Weight:         l.Weight,
		Certainty:      l.Certainty,
	}
}

func gateFunctionName(name string) string {
	if name == "" {
		return nodetype.GateFunctionIdentity
	}
	return name
}

func (n *Net) nodeRecord(idx int) model.NodeRecord {
	st := n.store
	t := st.nodeTypes[idx]
	meta := st.nodeMeta[idx]
	off := st.nodeOffset[idx]

	rec := model.NodeRecord{
		Type:            t.Name,
		Name:            meta.name,
		Position:        append([]float64(nil), meta.position...),
		Parameters:      meta.parameters.Clone(),
		Activation:      st.nodeAct[idx],
		ParentNodespace: st.nodeSpace[idx],
	}
	if len(meta.state) > 0 {
		rec.State = make(map[string]any, len(meta.state))
		for k, v := range meta.state {
			rec.State[k] = v
		}
	}
	for gi, gate := range t.GateTypes {
		e := off + gi
		p := st.gateParameters(e)
		def := t.GateDefaults[gate]
		if diff := diffGateParameters(p, def); !diff.Empty() {
			if rec.GateParameters == nil {
				rec.GateParameters = make(map[string]model.GateParameterRecord)
			}
			rec.GateParameters[gate] = diff
		}
		if gateFunctionName(p.Function) != gateFunctionName(def.Function) {
			if rec.GateFunctions == nil {
				rec.GateFunctions = make(map[string]string)
			}
			rec.GateFunctions[gate] = p.Function
		}
		if st.a[e] != 0 {
			if rec.GateActivations == nil {
				rec.GateActivations = make(map[string]float64)
			}
			rec.GateActivations[gate] = st.a[e]
		}
	}
	return rec
}

// FromRecord builds a net from its persisted form. opts supplies the
// registry, world and logger; identity fields come from the record.
func FromRecord(rec model.NodenetRecord, opts Options) (*Net, error) {
	if err := rec.CheckVersion(); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	opts.UID = rec.UID
	opts.Name = rec.Name
	opts.Owner = rec.Owner
	n, err := New(opts)
	if err != nil {
		return nil, err
	}
	n.stepCount = rec.Step

	if err := n.loadNodespaces(rec); err != nil {
		return nil, err
	}
	if err := n.loadNodes(rec); err != nil {
		return nil, err
	}
	for _, id := range sortedKeys(rec.Links) {
		l := rec.Links[id]
		if _, err := n.createLink(l.SourceNodeUID, l.SourceGateName, l.TargetNodeUID, l.TargetSlotName, l.Weight, l.Certainty); err != nil {
			return nil, fmt.Errorf("%w: link %s: %w", ErrMalformedSnapshot, id, err)
		}
	}
	for uid, m := range rec.Monitors {
		n.monitors[uid] = &monitor{rec: copyMonitor(m)}
	}
	for k, v := range rec.Modulators {
		n.modulators[k] = v
	}
	n.changes = newChangeLog(n.changes.retention)
	return n, nil
}

func (n *Net) loadNodespaces(rec model.NodenetRecord) error {
	depth := func(id string) int {
		d := 0
		for cursor := id; cursor != model.RootNodespace; cursor = rec.Nodespaces[cursor].ParentNodespace {
			d++
		}
		return d
	}
	ids := make([]string, 0, len(rec.Nodespaces))
	for id := range rec.Nodespaces {
		if id != model.RootNodespace {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := depth(ids[i]), depth(ids[j])
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})

	if root, ok := rec.Nodespaces[model.RootNodespace]; ok {
		ns := n.nodespaces[model.RootNodespace]
		if root.Name != "" {
			ns.name = root.Name
		}
		ns.position = append([]float64(nil), root.Position...)
		ns.index = root.Index
		if root.Index >= n.indexCounter {
			n.indexCounter = root.Index + 1
		}
		for k, v := range root.ActivatorValues {
			ns.activatorValues[k] = v
		}
	}
	for _, id := range ids {
		r := rec.Nodespaces[id]
		if _, err := n.createNodespace(r.ParentNodespace, r.Name, id, r.Position, r.Index); err != nil {
			return fmt.Errorf("%w: nodespace %s: %w", ErrMalformedSnapshot, id, err)
		}
		for k, v := range r.ActivatorValues {
			n.nodespaces[id].activatorValues[k] = v
		}
	}
	return nil
}

func (n *Net) loadNodes(rec model.NodenetRecord) error {
	st := n.store
	for _, id := range sortedKeys(rec.Nodes) {
		r := rec.Nodes[id]
		t, err := n.registry.Get(r.Type)
		if err != nil {
			return err
		}
		_, err = n.createNode(t, r.ParentNodespace, NodeOptions{
			ID:             id,
			Name:           r.Name,
			Position:       r.Position,
			Parameters:     r.Parameters,
			GateParameters: r.GateParameters,
			GateFunctions:  r.GateFunctions,
		})
		if err != nil {
			return fmt.Errorf("%w: node %s: %w", ErrMalformedSnapshot, id, err)
		}
		idx := st.ids[id]
		for k, v := range r.State {
			st.nodeMeta[idx].state[k] = v
		}
		st.nodeAct[idx] = r.Activation
		for gate, v := range r.GateActivations {
			if e, ok := st.gateElement(idx, gate); ok {
				st.a[e] = v
			}
		}
	}
	return nil
}

// NodespaceData is a read-only view of one nodespace.
type NodespaceData struct {
	Nodespace  string                           `json:"nodespace"`
	Step       int                              `json:"step"`
	Nodes      map[string]model.NodeRecord      `json:"nodes"`
	Links      map[string]model.LinkRecord      `json:"links"`
	Nodespaces map[string]model.NodespaceRecord `json:"nodespaces"`
	Monitors   map[string]model.MonitorRecord   `json:"monitors"`
}

// NodespaceData returns the nodes directly in a nodespace (at most
// maxNodes of them by id when maxNodes > 0), the links touching those
// nodes, the nodespace with its direct children and the monitors watching
// any of it.
func (n *Net) NodespaceData(id string, maxNodes int) (NodespaceData, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	ns, ok := n.nodespaces[id]
	if !ok {
		return NodespaceData{}, fmt.Errorf("%w: nodespace %s", ErrNotFound, id)
	}
	st := n.store
	data := NodespaceData{
		Nodespace:  id,
		Step:       n.stepCount,
		Nodes:      map[string]model.NodeRecord{},
		Links:      map[string]model.LinkRecord{},
		Nodespaces: map[string]model.NodespaceRecord{id: nodespaceRecord(ns)},
		Monitors:   map[string]model.MonitorRecord{},
	}
	for _, child := range sortedSet(ns.children) {
		data.Nodespaces[child] = nodespaceRecord(n.nodespaces[child])
	}

	nodeIDs := sortedSet(ns.nodes)
	if maxNodes > 0 && len(nodeIDs) > maxNodes {
		nodeIDs = nodeIDs[:maxNodes]
	}
	included := make(map[int]bool, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		idx := st.ids[nodeID]
		included[idx] = true
		data.Nodes[nodeID] = n.nodeRecord(idx)
	}
	for _, l := range n.links(included) {
		data.Links[l.ID] = linkRecord(l)
	}
	for uid, m := range n.monitors {
		switch m.rec.Classname {
		case NodeMonitor:
			if _, ok := data.Nodes[m.rec.NodeUID]; !ok {
				continue
			}
		case LinkMonitor:
			_, src := data.Nodes[m.rec.SourceNodeUID]
			_, tgt := data.Nodes[m.rec.TargetNodeUID]
			if !src && !tgt {
				continue
			}
		}
		data.Monitors[uid] = copyMonitor(m.rec)
	}
	return data, nil
}
