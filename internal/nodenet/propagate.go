package nodenet

import (
	"context"
	"strings"

	"nodenet/internal/nodetype"
)

type propagateOperator struct{}

func (propagateOperator) Name() string  { return "propagate" }
func (propagateOperator) Priority() int { return 0 }

func (propagateOperator) Execute(_ context.Context, sc *StepContext) error {
	sc.net.propagate(nil)
	return nil
}

// propagate moves gate activation along links into slots. With a non-nil
// subset only the slots of those nodes are reset and fed.
//
// Every slot in scope is reset before any link is read so reciprocal links
// see the same gate values regardless of node order.
func (n *Net) propagate(subset map[int]bool) {
	st := n.store
	inScope := func(e int) bool {
		return subset == nil || subset[st.elemNode[e]]
	}

	if subset == nil {
		for e := 0; e < st.elemHigh; e++ {
			st.s[e] = 0
		}
		for e := range st.slotSheaves {
			delete(st.slotSheaves, e)
		}
	} else {
		for idx := range subset {
			if !st.live(idx) {
				continue
			}
			off := st.nodeOffset[idx]
			for e := off; e < off+st.nodeTypes[idx].ElementCount(); e++ {
				st.s[e] = 0
				delete(st.slotSheaves, e)
			}
		}
	}

	// announce sheaves from spreading gates
	for source, sheaves := range st.gateSheaves {
		if !st.gSpread[source] || len(sheaves) == 0 {
			continue
		}
		for _, entry := range st.weights.outgoing(source) {
			target := entry.index
			if !inScope(target) {
				continue
			}
			if st.nodeTypes[st.elemNode[target]].Name == nodetype.TypeActor {
				continue
			}
			for sheaf, sv := range sheaves {
				st.announceSlotSheaf(target, sheaf, sv.name)
			}
		}
	}

	for _, target := range st.weights.targetRows() {
		if !inScope(target) {
			continue
		}
		targetID := st.nodeIDs[st.elemNode[target]]
		for _, entry := range st.weights.incoming(target) {
			source := entry.index
			st.s[target] += st.a[source] * entry.weight
			for sheaf, sv := range st.gateSheaves[source] {
				contribution := sv.activation * entry.weight
				if st.hasSlotSheaf(target, sheaf) {
					st.addSlotValue(target, sheaf, contribution)
					continue
				}
				suffix := "-" + targetID
				if !strings.HasSuffix(sheaf, suffix) {
					continue
				}
				if parent := strings.TrimSuffix(sheaf, suffix); st.hasSlotSheaf(target, parent) {
					st.addSlotValue(target, parent, contribution)
				}
			}
		}
	}
}
