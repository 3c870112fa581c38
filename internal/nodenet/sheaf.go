package nodenet

import (
	"sort"

	"nodenet/internal/nodetype"
)

func (st *elementStore) gateValue(e int, sheaf string) float64 {
	if sheaf == nodetype.DefaultSheaf {
		return st.a[e]
	}
	if sv, ok := st.gateSheaves[e][sheaf]; ok {
		return sv.activation
	}
	return 0
}

func (st *elementStore) setGateValue(e int, sheaf, name string, value float64) {
	if sheaf == nodetype.DefaultSheaf {
		st.a[e] = value
		return
	}
	sheaves := st.gateSheaves[e]
	if sheaves == nil {
		sheaves = make(map[string]*sheafValue)
		st.gateSheaves[e] = sheaves
	}
	if sv, ok := sheaves[sheaf]; ok {
		sv.activation = value
		return
	}
	if name == "" {
		name = sheaf
	}
	sheaves[sheaf] = &sheafValue{name: name, activation: value}
}

func (st *elementStore) slotValue(e int, sheaf string) float64 {
	if sheaf == nodetype.DefaultSheaf {
		return st.s[e]
	}
	if sv, ok := st.slotSheaves[e][sheaf]; ok {
		return sv.activation
	}
	return 0
}

// hasSlotSheaf reports whether the slot element listens on sheaf this step.
func (st *elementStore) hasSlotSheaf(e int, sheaf string) bool {
	if sheaf == nodetype.DefaultSheaf {
		return true
	}
	_, ok := st.slotSheaves[e][sheaf]
	return ok
}

func (st *elementStore) announceSlotSheaf(e int, sheaf, name string) {
	sheaves := st.slotSheaves[e]
	if sheaves == nil {
		sheaves = make(map[string]*sheafValue)
		st.slotSheaves[e] = sheaves
	}
	if _, ok := sheaves[sheaf]; !ok {
		sheaves[sheaf] = &sheafValue{name: name}
	}
}

func (st *elementStore) addSlotValue(e int, sheaf string, value float64) {
	if sheaf == nodetype.DefaultSheaf {
		st.s[e] += value
		return
	}
	st.slotSheaves[e][sheaf].activation += value
}

// sheafName resolves the display name of sheaf as carried by the node's
// slots or gates.
func (st *elementStore) sheafName(idx int, sheaf string) string {
	if sheaf == nodetype.DefaultSheaf {
		return nodetype.DefaultSheaf
	}
	off := st.nodeOffset[idx]
	for e := off; e < off+st.nodeTypes[idx].ElementCount(); e++ {
		if sv, ok := st.slotSheaves[e][sheaf]; ok {
			return sv.name
		}
		if sv, ok := st.gateSheaves[e][sheaf]; ok {
			return sv.name
		}
	}
	return sheaf
}

// nodeSheaves lists the sheaves a node's slots carry this step: the default
// sheaf first, then the others sorted by id.
func (st *elementStore) nodeSheaves(idx int) []string {
	off := st.nodeOffset[idx]
	extra := map[string]bool{}
	for si := range st.nodeTypes[idx].SlotTypes {
		for sheaf := range st.slotSheaves[off+si] {
			extra[sheaf] = true
		}
	}
	out := make([]string, 0, len(extra)+1)
	out = append(out, nodetype.DefaultSheaf)
	rest := make([]string, 0, len(extra))
	for sheaf := range extra {
		rest = append(rest, sheaf)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// pruneGateSheaves drops gate sheaves the node no longer receives so that
// only sheaves still carried by its slots survive into the next step.
func (st *elementStore) pruneGateSheaves(idx int, keep []string) {
	allowed := make(map[string]bool, len(keep))
	for _, sheaf := range keep {
		allowed[sheaf] = true
	}
	off := st.nodeOffset[idx]
	for gi := range st.nodeTypes[idx].GateTypes {
		sheaves := st.gateSheaves[off+gi]
		for sheaf := range sheaves {
			if !allowed[sheaf] {
				delete(sheaves, sheaf)
			}
		}
		if len(sheaves) == 0 {
			delete(st.gateSheaves, off+gi)
		}
	}
}

// evaluateGate runs the gate transfer for element e of node idx and stores
// the result for sheaf.
func (n *Net) evaluateGate(idx, e int, input float64, sheaf, name string) float64 {
	st := n.store
	factor := 1.0
	if ns, ok := n.nodespaces[st.nodeSpace[idx]]; ok {
		factor = ns.gateFactor(st.gateName(e))
	}
	value := st.gateParameters(e).Transfer(input, factor, st.gFunc[e])
	st.setGateValue(e, sheaf, name, value)
	return value
}
