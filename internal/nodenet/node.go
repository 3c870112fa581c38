package nodenet

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"nodenet/internal/model"
	"nodenet/internal/nodetype"
)

// NodeOptions carries the optional fields of CreateNode.
type NodeOptions struct {
	ID       string
	Name     string
	Position []float64
	// Parameters are merged over the type's parameter defaults.
	Parameters map[string]any
	// GateParameters override the type's gate defaults per gate.
	GateParameters map[string]model.GateParameterRecord
	GateFunctions  map[string]string
}

// NodeInfo is a copy of a node's current state.
type NodeInfo struct {
	ID              string
	Type            string
	Name            string
	Nodespace       string
	Position        []float64
	Parameters      map[string]any
	State           map[string]any
	Activation      float64
	GateActivations map[string]float64
	SlotActivations map[string]float64
	// GateSheaves holds non-default sheaf activations per gate.
	GateSheaves    map[string]map[string]float64
	GateParameters map[string]nodetype.GateParameters
}

// CreateNode adds a node of typeName to a nodespace and returns its id.
func (n *Net) CreateNode(typeName, nodespaceID string, opts NodeOptions) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, err := n.registry.Get(typeName)
	if err != nil {
		return "", err
	}
	return n.createNode(t, nodespaceID, opts)
}

func (n *Net) createNode(t *nodetype.Type, nodespaceID string, opts NodeOptions) (string, error) {
	st := n.store
	ns, ok := n.nodespaces[nodespaceID]
	if !ok {
		return "", fmt.Errorf("%w: nodespace %s", ErrNotFound, nodespaceID)
	}
	if opts.ID != "" {
		if _, exists := st.ids[opts.ID]; exists {
			return "", fmt.Errorf("%w: node %s", ErrDuplicateID, opts.ID)
		}
	}

	params := make(nodetype.Parameters, len(t.ParameterDefaults)+len(opts.Parameters))
	for k, v := range t.ParameterDefaults {
		params[k] = v
	}
	for k, v := range opts.Parameters {
		if err := checkParameter(t, k, v); err != nil {
			return "", err
		}
		params[k] = v
	}

	gates := make([]nodetype.GateParameters, len(t.GateTypes))
	funcs := make([]nodetype.GateFunc, len(t.GateTypes))
	for gi, gate := range t.GateTypes {
		gates[gi] = t.GateDefaults[gate]
	}
	for gate, rec := range opts.GateParameters {
		gi := t.GateIndex(gate)
		if gi < 0 {
			return "", fmt.Errorf("%w: %s on %s", ErrUnknownGate, gate, t.Name)
		}
		gates[gi] = applyGateRecord(gates[gi], rec)
	}
	for gate, name := range opts.GateFunctions {
		gi := t.GateIndex(gate)
		if gi < 0 {
			return "", fmt.Errorf("%w: %s on %s", ErrUnknownGate, gate, t.Name)
		}
		gates[gi].Function = name
	}
	for gi := range gates {
		if gates[gi].Minimum > gates[gi].Maximum {
			return "", fmt.Errorf("%w: gate %s minimum above maximum", ErrInvalidParameter, t.GateTypes[gi])
		}
		fn, err := n.registry.GateFunction(gates[gi].Function)
		if err != nil {
			return "", err
		}
		funcs[gi] = fn
	}

	idx := st.allocateNode()
	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("n%04d", idx+1)
		if _, taken := st.ids[id]; taken {
			id = uuid.NewString()
		}
	}
	name := opts.Name
	if name == "" {
		name = id
	}

	count := t.ElementCount()
	offset := st.allocateElements(idx, count)
	st.nodeIDs[idx] = id
	st.nodeTypes[idx] = t
	st.nodeOffset[idx] = offset
	st.nodeSpace[idx] = nodespaceID
	st.nodeAct[idx] = 0
	st.nodeMeta[idx] = &nodeMeta{
		name:       name,
		position:   append([]float64(nil), opts.Position...),
		parameters: params,
		state:      make(map[string]any),
		index:      n.nextIndex(),
	}
	for e := offset; e < offset+count; e++ {
		gi := e - offset
		if gi < len(gates) {
			st.setGateParameters(e, gates[gi], funcs[gi])
		} else {
			st.setGateParameters(e, nodetype.GateParameters{}, nil)
		}
	}
	st.ids[id] = idx
	ns.nodes[id] = true

	if t.Name == nodetype.TypeActivator {
		n.bindActivator(idx)
	}
	n.changes.nodeChanged(n.stepCount+1, id)
	return id, nil
}

func checkParameter(t *nodetype.Type, name string, value any) error {
	allowed, ok := t.ParameterValues[name]
	if !ok || len(allowed) == 0 {
		return nil
	}
	s := nodetype.Parameters{name: value}.String(name, "")
	for _, v := range allowed {
		if v == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s=%v not in %v", ErrInvalidParameter, name, value, allowed)
}

func applyGateRecord(p nodetype.GateParameters, rec model.GateParameterRecord) nodetype.GateParameters {
	if rec.Minimum != nil {
		p.Minimum = *rec.Minimum
	}
	if rec.Maximum != nil {
		p.Maximum = *rec.Maximum
	}
	if rec.Threshold != nil {
		p.Threshold = *rec.Threshold
	}
	if rec.Amplification != nil {
		p.Amplification = *rec.Amplification
	}
	if rec.Decay != nil {
		p.Decay = *rec.Decay
	}
	if rec.Rho != nil {
		p.Rho = *rec.Rho
	}
	if rec.Theta != nil {
		p.Theta = *rec.Theta
	}
	if rec.SpreadSheaves != nil {
		p.SpreadSheaves = *rec.SpreadSheaves
	}
	return p
}

// diffGateParameters returns the fields of p that differ from def.
func diffGateParameters(p, def nodetype.GateParameters) model.GateParameterRecord {
	var rec model.GateParameterRecord
	diff := func(v, d float64) *float64 {
		if v == d {
			return nil
		}
		out := v
		return &out
	}
	rec.Minimum = diff(p.Minimum, def.Minimum)
	rec.Maximum = diff(p.Maximum, def.Maximum)
	rec.Threshold = diff(p.Threshold, def.Threshold)
	rec.Amplification = diff(p.Amplification, def.Amplification)
	rec.Decay = diff(p.Decay, def.Decay)
	rec.Rho = diff(p.Rho, def.Rho)
	rec.Theta = diff(p.Theta, def.Theta)
	if p.SpreadSheaves != def.SpreadSheaves {
		v := p.SpreadSheaves
		rec.SpreadSheaves = &v
	}
	return rec
}

// DeleteNode removes a node and every link touching it.
func (n *Net) DeleteNode(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deleteNode(id)
}

func (n *Net) deleteNode(id string) error {
	st := n.store
	idx, ok := st.lookup(id)
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	n.unlinkCompletely(idx)
	if st.nodeTypes[idx].Name == nodetype.TypeActivator {
		n.unbindActivator(idx)
	}
	if ns, ok := n.nodespaces[st.nodeSpace[idx]]; ok {
		delete(ns.nodes, id)
	}
	st.releaseElements(st.nodeOffset[idx], st.nodeTypes[idx].ElementCount())
	delete(st.ids, id)
	st.releaseNode(idx)
	n.changes.nodeDeleted(n.stepCount+1, id)
	return nil
}

func activatorGateType(st *elementStore, idx int) string {
	return st.nodeMeta[idx].parameters.String("type", "")
}

func (n *Net) bindActivator(idx int) {
	st := n.store
	gateType := activatorGateType(st, idx)
	if gateType == "" {
		return
	}
	if ns, ok := n.nodespaces[st.nodeSpace[idx]]; ok {
		ns.activators[gateType] = st.nodeIDs[idx]
	}
}

// unbindActivator releases the bindings held by the activator at idx. A
// binding passes to the most recently created remaining activator of the
// same gate type in the nodespace.
func (n *Net) unbindActivator(idx int) {
	st := n.store
	ns, ok := n.nodespaces[st.nodeSpace[idx]]
	if !ok {
		return
	}
	id := st.nodeIDs[idx]
	for gateType, nodeID := range ns.activators {
		if nodeID != id {
			continue
		}
		delete(ns.activators, gateType)
		delete(ns.activatorValues, gateType)
		if next := n.latestActivator(ns, gateType, id); next != "" {
			ns.activators[gateType] = next
		}
	}
}

func (n *Net) latestActivator(ns *nodespace, gateType, exclude string) string {
	st := n.store
	best, bestIndex := "", -1
	for nodeID := range ns.nodes {
		if nodeID == exclude {
			continue
		}
		idx, ok := st.lookup(nodeID)
		if !ok || st.nodeTypes[idx].Name != nodetype.TypeActivator || activatorGateType(st, idx) != gateType {
			continue
		}
		if st.nodeMeta[idx].index > bestIndex {
			best, bestIndex = nodeID, st.nodeMeta[idx].index
		}
	}
	return best
}

func (n *Net) node(id string) (int, error) {
	idx, ok := n.store.lookup(id)
	if !ok {
		return -1, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return idx, nil
}

func (n *Net) Node(id string) (NodeInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	idx, err := n.node(id)
	if err != nil {
		return NodeInfo{}, err
	}
	return n.nodeInfo(idx), nil
}

func (n *Net) nodeInfo(idx int) NodeInfo {
	st := n.store
	t := st.nodeTypes[idx]
	meta := st.nodeMeta[idx]
	off := st.nodeOffset[idx]

	info := NodeInfo{
		ID:              st.nodeIDs[idx],
		Type:            t.Name,
		Name:            meta.name,
		Nodespace:       st.nodeSpace[idx],
		Position:        append([]float64(nil), meta.position...),
		Parameters:      meta.parameters.Clone(),
		State:           make(map[string]any, len(meta.state)),
		Activation:      st.nodeAct[idx],
		GateActivations: make(map[string]float64, len(t.GateTypes)),
		SlotActivations: make(map[string]float64, len(t.SlotTypes)),
		GateSheaves:     make(map[string]map[string]float64),
		GateParameters:  make(map[string]nodetype.GateParameters, len(t.GateTypes)),
	}
	for k, v := range meta.state {
		info.State[k] = v
	}
	for gi, gate := range t.GateTypes {
		e := off + gi
		info.GateActivations[gate] = st.a[e]
		info.GateParameters[gate] = st.gateParameters(e)
		if sheaves := st.gateSheaves[e]; len(sheaves) > 0 {
			values := make(map[string]float64, len(sheaves))
			for sheaf, sv := range sheaves {
				values[sheaf] = sv.activation
			}
			info.GateSheaves[gate] = values
		}
	}
	for si, slot := range t.SlotTypes {
		info.SlotActivations[slot] = st.s[off+si]
	}
	return info
}

// NodeIDs lists every node id in ascending order.
func (n *Net) NodeIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return sortedKeys(n.store.ids)
}

// NodesOfType lists the ids of nodes of typeName in ascending order.
func (n *Net) NodesOfType(typeName string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var out []string
	for id, idx := range n.store.ids {
		if n.store.nodeTypes[idx].Name == typeName {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (n *Net) SetParameter(id, name string, value any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	st := n.store
	t := st.nodeTypes[idx]
	if err := checkParameter(t, name, value); err != nil {
		return err
	}
	rebind := t.Name == nodetype.TypeActivator && name == "type"
	if rebind {
		n.unbindActivator(idx)
	}
	st.nodeMeta[idx].parameters[name] = value
	if rebind {
		n.bindActivator(idx)
	}
	n.changes.nodeChanged(n.stepCount+1, id)
	return nil
}

func (n *Net) SetState(id, key string, value any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	n.store.nodeMeta[idx].state[key] = value
	n.changes.nodeChanged(n.stepCount+1, id)
	return nil
}

func (n *Net) RenameNode(id, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	n.store.nodeMeta[idx].name = name
	n.changes.nodeChanged(n.stepCount+1, id)
	return nil
}

func (n *Net) MoveNode(id string, position []float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	n.store.nodeMeta[idx].position = append([]float64(nil), position...)
	n.changes.nodeChanged(n.stepCount+1, id)
	return nil
}

// SetGateParameters applies the non-nil fields of rec to a gate.
func (n *Net) SetGateParameters(id, gate string, rec model.GateParameterRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	st := n.store
	e, ok := st.gateElement(idx, gate)
	if !ok {
		return fmt.Errorf("%w: %s on node %s", ErrUnknownGate, gate, id)
	}
	p := applyGateRecord(st.gateParameters(e), rec)
	if p.Minimum > p.Maximum {
		return fmt.Errorf("%w: gate %s minimum above maximum", ErrInvalidParameter, gate)
	}
	st.setGateParameters(e, p, st.gFunc[e])
	n.changes.nodeChanged(n.stepCount+1, id)
	return nil
}

func (n *Net) SetGateFunction(id, gate, function string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	st := n.store
	e, ok := st.gateElement(idx, gate)
	if !ok {
		return fmt.Errorf("%w: %s on node %s", ErrUnknownGate, gate, id)
	}
	fn, err := n.registry.GateFunction(function)
	if err != nil {
		return err
	}
	p := st.gateParameters(e)
	p.Function = function
	st.setGateParameters(e, p, fn)
	n.changes.nodeChanged(n.stepCount+1, id)
	return nil
}

// SetNodeActivation sets a node's activation and, when its type has a gen
// gate, the default sheaf of that gate.
func (n *Net) SetNodeActivation(id string, value float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	n.setActivation(idx, value)
	return nil
}

func (n *Net) setActivation(idx int, value float64) {
	st := n.store
	st.nodeAct[idx] = value
	if e, ok := st.gateElement(idx, "gen"); ok {
		st.a[e] = value
	}
}

// SetGateActivation writes a gate activation directly, bypassing the gate
// transfer.
func (n *Net) SetGateActivation(id, gate, sheaf string, value float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(id)
	if err != nil {
		return err
	}
	e, ok := n.store.gateElement(idx, gate)
	if !ok {
		return fmt.Errorf("%w: %s on node %s", ErrUnknownGate, gate, id)
	}
	if sheaf == "" {
		sheaf = nodetype.DefaultSheaf
	}
	n.store.setGateValue(e, sheaf, "", value)
	return nil
}

// nodeView is the node handle passed to node functions. It runs under the
// net lock held by the step and never takes it itself.
type nodeView struct {
	net *Net
	idx int
}

var _ nodetype.Node = nodeView{}

func (v nodeView) ID() string        { return v.net.store.nodeIDs[v.idx] }
func (v nodeView) Type() string      { return v.net.store.nodeTypes[v.idx].Name }
func (v nodeView) Name() string      { return v.net.store.nodeMeta[v.idx].name }
func (v nodeView) Nodespace() string { return v.net.store.nodeSpace[v.idx] }

func (v nodeView) Activation() float64 {
	return v.net.store.nodeAct[v.idx]
}

func (v nodeView) SetActivation(value float64) {
	v.net.setActivation(v.idx, value)
}

func (v nodeView) SlotActivation(slot, sheaf string) (float64, error) {
	e, ok := v.net.store.slotElement(v.idx, slot)
	if !ok {
		return 0, fmt.Errorf("%w: %s on node %s", ErrUnknownSlot, slot, v.ID())
	}
	return v.net.store.slotValue(e, sheaf), nil
}

func (v nodeView) GateActivation(gate, sheaf string) (float64, error) {
	e, ok := v.net.store.gateElement(v.idx, gate)
	if !ok {
		return 0, fmt.Errorf("%w: %s on node %s", ErrUnknownGate, gate, v.ID())
	}
	return v.net.store.gateValue(e, sheaf), nil
}

func (v nodeView) GateFunction(gate string, input float64, sheaf string) error {
	st := v.net.store
	e, ok := st.gateElement(v.idx, gate)
	if !ok {
		return fmt.Errorf("%w: %s on node %s", ErrUnknownGate, gate, v.ID())
	}
	v.net.evaluateGate(v.idx, e, input, sheaf, st.sheafName(v.idx, sheaf))
	return nil
}

func (v nodeView) OpenSheaf(gate string, input float64, parent string) ([]string, error) {
	st := v.net.store
	e, ok := st.gateElement(v.idx, gate)
	if !ok {
		return nil, fmt.Errorf("%w: %s on node %s", ErrUnknownGate, gate, v.ID())
	}
	parentName := st.sheafName(v.idx, parent)
	seen := map[int]bool{}
	var ids []string
	for _, entry := range st.weights.outgoing(e) {
		target := st.elemNode[entry.index]
		if seen[target] {
			continue
		}
		seen[target] = true
		sheaf := parent + "-" + st.nodeIDs[target]
		v.net.evaluateGate(v.idx, e, input, sheaf, parentName+"-"+st.nodeMeta[target].name)
		ids = append(ids, sheaf)
	}
	return ids, nil
}

func (v nodeView) SlotTypes() []string {
	return append([]string(nil), v.net.store.nodeTypes[v.idx].SlotTypes...)
}

func (v nodeView) GateTypes() []string {
	return append([]string(nil), v.net.store.nodeTypes[v.idx].GateTypes...)
}

func (v nodeView) Parameter(name string) (any, bool) {
	value, ok := v.net.store.nodeMeta[v.idx].parameters[name]
	return value, ok
}

func (v nodeView) State(key string) (any, bool) {
	value, ok := v.net.store.nodeMeta[v.idx].state[key]
	return value, ok
}

func (v nodeView) SetState(key string, value any) {
	v.net.store.nodeMeta[v.idx].state[key] = value
}
