package nodenet

import (
	"fmt"

	"nodenet/internal/nodetype"
)

type reloadPlan struct {
	id          string
	nodespaceID string
	latest      *nodetype.Type
	opts        NodeOptions
}

// ReloadNodeTypes rebinds every node to the registry's current definition
// of its type. Nodes whose type kept its slots and gates keep everything;
// nodes whose layout changed are recreated with the same id, name,
// position, nodespace and parameters, losing their links, gate parameter
// overrides and state. Parameter values the new definition no longer
// allows are dropped. Every node is checked before any is touched, so a
// failed reload leaves the net unchanged. The ids of recreated nodes are
// returned.
func (n *Net) ReloadNodeTypes() ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := n.store
	rebind := make(map[int]*nodetype.Type)
	var plans []reloadPlan
	for _, idx := range st.liveNodes() {
		current := st.nodeTypes[idx]
		latest, err := n.registry.Get(current.Name)
		if err != nil {
			return nil, err
		}
		if latest == current {
			continue
		}
		if current.SameLayout(latest) {
			rebind[idx] = latest
			continue
		}
		if err := n.checkGateDefaults(latest); err != nil {
			return nil, err
		}
		meta := st.nodeMeta[idx]
		params := make(nodetype.Parameters, len(meta.parameters))
		for k, v := range meta.parameters {
			if checkParameter(latest, k, v) == nil {
				params[k] = v
			}
		}
		plans = append(plans, reloadPlan{
			id:          st.nodeIDs[idx],
			nodespaceID: st.nodeSpace[idx],
			latest:      latest,
			opts: NodeOptions{
				ID:         st.nodeIDs[idx],
				Name:       meta.name,
				Position:   meta.position,
				Parameters: params,
			},
		})
	}

	for idx, latest := range rebind {
		st.nodeTypes[idx] = latest
	}
	recreated := make([]string, 0, len(plans))
	for _, p := range plans {
		if err := n.deleteNode(p.id); err != nil {
			return recreated, err
		}
		if _, err := n.createNode(p.latest, p.nodespaceID, p.opts); err != nil {
			return recreated, err
		}
		recreated = append(recreated, p.id)
	}
	if len(recreated) > 0 {
		n.logger.Info().Int("recreated", len(recreated)).Msg("node types reloaded")
	}
	return recreated, nil
}

// checkGateDefaults reports whether nodes of t can be created with its
// default gate parameters.
func (n *Net) checkGateDefaults(t *nodetype.Type) error {
	for _, gate := range t.GateTypes {
		p := t.GateDefaults[gate]
		if p.Minimum > p.Maximum {
			return fmt.Errorf("%w: gate %s minimum above maximum", ErrInvalidParameter, gate)
		}
		if _, err := n.registry.GateFunction(p.Function); err != nil {
			return err
		}
	}
	return nil
}
