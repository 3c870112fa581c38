package nodenet

import (
	"sort"

	"nodenet/internal/nodetype"
)

const (
	defaultInitialNodes    = 2000
	defaultInitialElements = 5000
)

// sheafValue is one non-default sheaf on a gate or slot element.
type sheafValue struct {
	name       string
	activation float64
}

// nodeMeta holds the non-numeric per-node data.
type nodeMeta struct {
	name       string
	position   []float64
	parameters nodetype.Parameters
	state      map[string]any
	index      int
}

// elementStore is the array-backed entity storage. Nodes live in a node
// table; each node owns a contiguous block of elements in the element
// table, one element per max(gates, slots): gate i and slot i of a node
// share element offset+i. Gate parameters and the default-sheaf gate and
// slot activations are columns over the element table. Links live in a
// sparse matrix from gate elements to slot elements.
type elementStore struct {
	// node table
	nodeIDs    []string
	nodeTypes  []*nodetype.Type // nil marks a free row
	nodeOffset []int
	nodeSpace  []string
	nodeAct    []float64
	nodeMeta   []*nodeMeta
	nodeHigh   int
	freeNodes  []int
	ids        map[string]int

	// element table
	elemNode  []int // owning node index, -1 marks a free element
	a         []float64
	s         []float64
	gMin      []float64
	gMax      []float64
	gThresh   []float64
	gAmp      []float64
	gDecay    []float64
	gRho      []float64
	gTheta    []float64
	gSpread   []bool
	gFuncName []string
	gFunc     []nodetype.GateFunc
	elemHigh  int
	freeElems int

	gateSheaves map[int]map[string]*sheafValue
	slotSheaves map[int]map[string]*sheafValue

	weights   *sparseMatrix
	certainty map[[2]int]float64
}

func newElementStore(nodes, elements int) *elementStore {
	if nodes <= 0 {
		nodes = defaultInitialNodes
	}
	if elements <= 0 {
		elements = defaultInitialElements
	}
	st := &elementStore{
		ids:         make(map[string]int),
		gateSheaves: make(map[int]map[string]*sheafValue),
		slotSheaves: make(map[int]map[string]*sheafValue),
		weights:     newSparseMatrix(),
		certainty:   make(map[[2]int]float64),
	}
	st.growNodes(nodes)
	st.growElements(elements)
	return st
}

// grownCapacity doubles the current capacity, or grows to the requested
// size plus half the current capacity when that is larger.
func grownCapacity(current, need int) int {
	doubled := current * 2
	alt := need + current/2
	if alt > doubled {
		return alt
	}
	return doubled
}

func resized[T any](s []T, n int) []T {
	out := make([]T, n)
	copy(out, s)
	return out
}

func (st *elementStore) nodeCapacity() int {
	return len(st.nodeIDs)
}

func (st *elementStore) elementCapacity() int {
	return len(st.elemNode)
}

func (st *elementStore) growNodes(n int) {
	old := len(st.nodeIDs)
	st.nodeIDs = resized(st.nodeIDs, n)
	st.nodeTypes = resized(st.nodeTypes, n)
	st.nodeOffset = resized(st.nodeOffset, n)
	st.nodeSpace = resized(st.nodeSpace, n)
	st.nodeAct = resized(st.nodeAct, n)
	st.nodeMeta = resized(st.nodeMeta, n)
	for i := old; i < n; i++ {
		st.nodeOffset[i] = -1
	}
}

func (st *elementStore) growElements(n int) {
	old := len(st.elemNode)
	st.elemNode = resized(st.elemNode, n)
	st.a = resized(st.a, n)
	st.s = resized(st.s, n)
	st.gMin = resized(st.gMin, n)
	st.gMax = resized(st.gMax, n)
	st.gThresh = resized(st.gThresh, n)
	st.gAmp = resized(st.gAmp, n)
	st.gDecay = resized(st.gDecay, n)
	st.gRho = resized(st.gRho, n)
	st.gTheta = resized(st.gTheta, n)
	st.gSpread = resized(st.gSpread, n)
	st.gFuncName = resized(st.gFuncName, n)
	st.gFunc = resized(st.gFunc, n)
	for i := old; i < n; i++ {
		st.elemNode[i] = -1
	}
}

// allocateNode reserves the lowest free node row.
func (st *elementStore) allocateNode() int {
	if len(st.freeNodes) > 0 {
		idx := st.freeNodes[0]
		st.freeNodes = st.freeNodes[1:]
		return idx
	}
	if st.nodeHigh >= st.nodeCapacity() {
		st.growNodes(grownCapacity(st.nodeCapacity(), st.nodeHigh+1))
	}
	idx := st.nodeHigh
	st.nodeHigh++
	return idx
}

func (st *elementStore) releaseNode(idx int) {
	st.nodeIDs[idx] = ""
	st.nodeTypes[idx] = nil
	st.nodeOffset[idx] = -1
	st.nodeSpace[idx] = ""
	st.nodeAct[idx] = 0
	st.nodeMeta[idx] = nil
	i := sort.SearchInts(st.freeNodes, idx)
	st.freeNodes = append(st.freeNodes, 0)
	copy(st.freeNodes[i+1:], st.freeNodes[i:])
	st.freeNodes[i] = idx
}

// allocateElements reserves a contiguous block of n elements for node,
// reusing the lowest freed run that fits before extending the table.
func (st *elementStore) allocateElements(node, n int) int {
	offset := -1
	if n > 0 && st.freeElems >= n {
		offset = st.findFreeRun(n)
	}
	if offset < 0 {
		offset = st.elemHigh
		if st.elemHigh+n > st.elementCapacity() {
			st.growElements(grownCapacity(st.elementCapacity(), st.elemHigh+n))
		}
		st.elemHigh += n
	} else {
		st.freeElems -= n
	}
	for e := offset; e < offset+n; e++ {
		st.elemNode[e] = node
		st.a[e] = 0
		st.s[e] = 0
	}
	return offset
}

func (st *elementStore) findFreeRun(n int) int {
	run := 0
	for e := 0; e < st.elemHigh; e++ {
		if st.elemNode[e] != -1 {
			run = 0
			continue
		}
		run++
		if run == n {
			return e - n + 1
		}
	}
	return -1
}

func (st *elementStore) releaseElements(offset, n int) {
	for e := offset; e < offset+n; e++ {
		st.elemNode[e] = -1
		st.a[e] = 0
		st.s[e] = 0
		st.gFunc[e] = nil
		st.gFuncName[e] = ""
		st.gSpread[e] = false
		delete(st.gateSheaves, e)
		delete(st.slotSheaves, e)
	}
	st.freeElems += n
}

func (st *elementStore) live(idx int) bool {
	return idx >= 0 && idx < st.nodeHigh && st.nodeTypes[idx] != nil
}

func (st *elementStore) lookup(id string) (int, bool) {
	idx, ok := st.ids[id]
	return idx, ok
}

func (st *elementStore) gateElement(idx int, gate string) (int, bool) {
	gi := st.nodeTypes[idx].GateIndex(gate)
	if gi < 0 {
		return -1, false
	}
	return st.nodeOffset[idx] + gi, true
}

func (st *elementStore) slotElement(idx int, slot string) (int, bool) {
	si := st.nodeTypes[idx].SlotIndex(slot)
	if si < 0 {
		return -1, false
	}
	return st.nodeOffset[idx] + si, true
}

// gateName resolves the gate an element represents for its owning node.
func (st *elementStore) gateName(e int) string {
	idx := st.elemNode[e]
	return st.nodeTypes[idx].GateTypes[e-st.nodeOffset[idx]]
}

func (st *elementStore) slotName(e int) string {
	idx := st.elemNode[e]
	return st.nodeTypes[idx].SlotTypes[e-st.nodeOffset[idx]]
}

func (st *elementStore) gateParameters(e int) nodetype.GateParameters {
	return nodetype.GateParameters{
		Minimum:       st.gMin[e],
		Maximum:       st.gMax[e],
		Threshold:     st.gThresh[e],
		Amplification: st.gAmp[e],
		Decay:         st.gDecay[e],
		Rho:           st.gRho[e],
		Theta:         st.gTheta[e],
		SpreadSheaves: st.gSpread[e],
		Function:      st.gFuncName[e],
	}
}

func (st *elementStore) setGateParameters(e int, p nodetype.GateParameters, fn nodetype.GateFunc) {
	st.gMin[e] = p.Minimum
	st.gMax[e] = p.Maximum
	st.gThresh[e] = p.Threshold
	st.gAmp[e] = p.Amplification
	st.gDecay[e] = p.Decay
	st.gRho[e] = p.Rho
	st.gTheta[e] = p.Theta
	st.gSpread[e] = p.SpreadSheaves
	st.gFuncName[e] = p.Function
	st.gFunc[e] = fn
}

// liveNodes returns the indices of all allocated nodes in ascending order.
func (st *elementStore) liveNodes() []int {
	out := make([]int, 0, len(st.ids))
	for idx := 0; idx < st.nodeHigh; idx++ {
		if st.nodeTypes[idx] != nil {
			out = append(out, idx)
		}
	}
	return out
}

func (st *elementStore) nodeCount() int {
	return len(st.ids)
}
