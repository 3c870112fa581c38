package nodenet

import (
	"fmt"

	"github.com/google/uuid"

	"nodenet/internal/model"
	"nodenet/internal/nodetype"
)

// Monitor class names as persisted.
const (
	NodeMonitor      = "NodeMonitor"
	LinkMonitor      = "LinkMonitor"
	ModulatorMonitor = "ModulatorMonitor"
)

// Targets of a NodeMonitor.
const (
	MonitorGate = "gate"
	MonitorSlot = "slot"
)

type monitor struct {
	rec model.MonitorRecord
}

// value reads the monitored quantity; ok is false when the subject is gone.
func (n *Net) monitorValue(m *monitor) (float64, bool) {
	st := n.store
	switch m.rec.Classname {
	case NodeMonitor:
		idx, ok := st.lookup(m.rec.NodeUID)
		if !ok {
			return 0, false
		}
		if m.rec.Type == MonitorSlot {
			e, ok := st.slotElement(idx, m.rec.Target)
			if !ok {
				return 0, false
			}
			return st.slotValue(e, m.rec.Sheaf), true
		}
		e, ok := st.gateElement(idx, m.rec.Target)
		if !ok {
			return 0, false
		}
		return st.gateValue(e, m.rec.Sheaf), true
	case LinkMonitor:
		source, target, err := n.endpoints(m.rec.SourceNodeUID, m.rec.GateName, m.rec.TargetNodeUID, m.rec.SlotName)
		if err != nil {
			return 0, false
		}
		return st.weights.get(target, source)
	case ModulatorMonitor:
		v, ok := n.modulators[m.rec.Modulator]
		return v, ok
	}
	return 0, false
}

// sampleMonitors records the current values and forgets those older than
// the history window.
func (n *Net) sampleMonitors() {
	horizon := n.stepCount - n.changes.retention
	for _, m := range n.monitors {
		if v, ok := n.monitorValue(m); ok {
			m.rec.Values[n.stepCount] = v
		}
		for step := range m.rec.Values {
			if step <= horizon {
				delete(m.rec.Values, step)
			}
		}
	}
}

func (n *Net) addMonitor(rec model.MonitorRecord) string {
	uid := uuid.NewString()
	if rec.Values == nil {
		rec.Values = make(map[int]float64)
	}
	n.monitors[uid] = &monitor{rec: rec}
	return uid
}

// AddNodeMonitor records a gate or slot activation of a node after every
// step.
func (n *Net) AddNodeMonitor(nodeID, target, kind, sheaf, name string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.node(nodeID)
	if err != nil {
		return "", err
	}
	switch kind {
	case MonitorGate:
		if _, ok := n.store.gateElement(idx, target); !ok {
			return "", fmt.Errorf("%w: %s on node %s", ErrUnknownGate, target, nodeID)
		}
	case MonitorSlot:
		if _, ok := n.store.slotElement(idx, target); !ok {
			return "", fmt.Errorf("%w: %s on node %s", ErrUnknownSlot, target, nodeID)
		}
	default:
		return "", fmt.Errorf("%w: monitor type %q", ErrInvalidParameter, kind)
	}
	if sheaf == "" {
		sheaf = nodetype.DefaultSheaf
	}
	if name == "" {
		name = fmt.Sprintf("%s.%s %s", nodeID, target, kind)
	}
	return n.addMonitor(model.MonitorRecord{
		Classname: NodeMonitor,
		Name:      name,
		NodeUID:   nodeID,
		Target:    target,
		Type:      kind,
		Sheaf:     sheaf,
	}), nil
}

// AddLinkMonitor records the weight of a link after every step.
func (n *Net) AddLinkMonitor(sourceNode, sourceGate, targetNode, targetSlot, name string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, _, err := n.endpoints(sourceNode, sourceGate, targetNode, targetSlot); err != nil {
		return "", err
	}
	if name == "" {
		name = model.LinkID(sourceNode, sourceGate, targetSlot, targetNode)
	}
	return n.addMonitor(model.MonitorRecord{
		Classname:     LinkMonitor,
		Name:          name,
		SourceNodeUID: sourceNode,
		GateName:      sourceGate,
		TargetNodeUID: targetNode,
		SlotName:      targetSlot,
	}), nil
}

func (n *Net) AddModulatorMonitor(modulator, name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if name == "" {
		name = modulator
	}
	return n.addMonitor(model.MonitorRecord{
		Classname: ModulatorMonitor,
		Name:      name,
		Modulator: modulator,
	})
}

func (n *Net) RemoveMonitor(uid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.monitors[uid]; !ok {
		return fmt.Errorf("%w: monitor %s", ErrNotFound, uid)
	}
	delete(n.monitors, uid)
	return nil
}

// Monitor returns a copy of a monitor and its recorded values.
func (n *Net) Monitor(uid string) (model.MonitorRecord, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	m, ok := n.monitors[uid]
	if !ok {
		return model.MonitorRecord{}, fmt.Errorf("%w: monitor %s", ErrNotFound, uid)
	}
	return copyMonitor(m.rec), nil
}

func (n *Net) MonitorIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return sortedKeys(n.monitors)
}

func copyMonitor(rec model.MonitorRecord) model.MonitorRecord {
	values := make(map[int]float64, len(rec.Values))
	for k, v := range rec.Values {
		values[k] = v
	}
	rec.Values = values
	return rec
}
