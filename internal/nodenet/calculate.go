package nodenet

import (
	"context"
	"fmt"

	"nodenet/internal/nodetype"
)

type calculateOperator struct{}

func (calculateOperator) Name() string  { return "calculate" }
func (calculateOperator) Priority() int { return 1 }

func (calculateOperator) Execute(ctx context.Context, sc *StepContext) error {
	return sc.net.calculate(ctx)
}

// calculate runs node functions in three groups: activators, then native
// module types, then the standard types. Activator values are published to
// their nodespaces between the first and second group.
func (n *Net) calculate(ctx context.Context) error {
	st := n.store
	var activators, native, standard []int
	for _, idx := range st.liveNodes() {
		t := st.nodeTypes[idx]
		switch {
		case t.Name == nodetype.TypeActivator:
			activators = append(activators, idx)
		case !t.Standard:
			native = append(native, idx)
		default:
			standard = append(standard, idx)
		}
	}

	if err := n.calculateGroup(ctx, activators); err != nil {
		return err
	}
	for _, idx := range activators {
		if gateType := activatorGateType(st, idx); gateType != "" {
			if ns, ok := n.nodespaces[st.nodeSpace[idx]]; ok && ns.activators[gateType] == st.nodeIDs[idx] {
				ns.activatorValues[gateType] = st.nodeAct[idx]
			}
		}
	}
	if err := n.calculateGroup(ctx, native); err != nil {
		return err
	}
	if err := n.calculateGroup(ctx, standard); err != nil {
		return err
	}
	for _, idx := range activators {
		gateType := activatorGateType(st, idx)
		ns, ok := n.nodespaces[st.nodeSpace[idx]]
		if !ok {
			continue
		}
		if v, set := ns.activatorValues[gateType]; set && ns.activators[gateType] == st.nodeIDs[idx] {
			st.nodeAct[idx] = v
		}
	}
	return nil
}

func (n *Net) calculateGroup(ctx context.Context, nodes []int) error {
	for _, idx := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.calculateNode(idx); err != nil {
			return err
		}
	}
	return nil
}

// calculateNode calls the node function once per sheaf carried by the
// node's slots, default sheaf first.
func (n *Net) calculateNode(idx int) error {
	st := n.store
	t := st.nodeTypes[idx]
	if t.Func == nil {
		return nil
	}
	sheaves := st.nodeSheaves(idx)
	st.pruneGateSheaves(idx, sheaves)

	view := nodeView{net: n, idx: idx}
	api := netAPI{net: n}
	params := st.nodeMeta[idx].parameters
	for _, sheaf := range sheaves {
		if err := callNodeFunc(t.Func, api, view, sheaf, params); err != nil {
			return fmt.Errorf("%w: node %s (%s): %w", ErrNodeFunction, st.nodeIDs[idx], t.Name, err)
		}
	}
	return nil
}

func callNodeFunc(fn nodetype.Func, api nodetype.API, node nodetype.Node, sheaf string, params nodetype.Parameters) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(api, node, sheaf, params)
}
