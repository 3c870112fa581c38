package nodenet

import (
	"testing"

	"github.com/rs/zerolog"

	"nodenet/internal/model"
	"nodenet/internal/nodetype"
)

func TestGrownCapacity(t *testing.T) {
	tests := []struct {
		current, need, want int
	}{
		{current: 4, need: 5, want: 8},
		{current: 4, need: 20, want: 22},
		{current: 0, need: 3, want: 3},
	}
	for _, tc := range tests {
		if got := grownCapacity(tc.current, tc.need); got != tc.want {
			t.Fatalf("grownCapacity(%d, %d)=%d want=%d", tc.current, tc.need, got, tc.want)
		}
	}
}

func TestElementStoreReusesLowestFreeRun(t *testing.T) {
	st := newElementStore(4, 16)
	a := st.allocateElements(0, 3)
	b := st.allocateElements(1, 2)
	c := st.allocateElements(2, 3)
	if a != 0 || b != 3 || c != 5 {
		t.Fatalf("unexpected offsets: %d %d %d", a, b, c)
	}

	st.releaseElements(a, 3)
	st.releaseElements(b, 2)
	if got := st.allocateElements(3, 4); got != 0 {
		t.Fatalf("expected merged free run at 0, got %d", got)
	}
	if got := st.allocateElements(4, 2); got != 8 {
		t.Fatalf("expected append at 8 when no run fits, got %d", got)
	}
	if got := st.allocateElements(5, 1); got != 4 {
		t.Fatalf("expected remaining free element 4, got %d", got)
	}
}

func TestElementStoreReusesLowestNodeRow(t *testing.T) {
	st := newElementStore(4, 4)
	for i := 0; i < 4; i++ {
		if got := st.allocateNode(); got != i {
			t.Fatalf("allocate %d: got %d", i, got)
		}
		st.nodeTypes[i] = &nodetype.Type{Name: "x"}
	}
	st.releaseNode(2)
	st.releaseNode(1)
	if got := st.allocateNode(); got != 1 {
		t.Fatalf("expected lowest free row 1, got %d", got)
	}
	if got := st.allocateNode(); got != 2 {
		t.Fatalf("expected row 2, got %d", got)
	}
	if got := st.allocateNode(); got != 4 {
		t.Fatalf("expected new row 4, got %d", got)
	}
	if st.nodeCapacity() != 8 {
		t.Fatalf("expected doubled capacity, got %d", st.nodeCapacity())
	}
}

func TestSparseMatrix(t *testing.T) {
	m := newSparseMatrix()
	if m.set(3, 1, 0.5) {
		t.Fatal("new entry reported as existing")
	}
	m.set(3, 0, 0.25)
	m.set(4, 1, -1)
	if !m.set(3, 1, 0.75) {
		t.Fatal("update not reported as existing")
	}
	if m.nnz != 3 {
		t.Fatalf("nnz=%d want=3", m.nnz)
	}
	row := m.incoming(3)
	if len(row) != 2 || row[0].index != 0 || row[1].index != 1 || row[1].weight != 0.75 {
		t.Fatalf("unexpected row: %+v", row)
	}

	m.set(4, 1, 0)
	if _, ok := m.get(4, 1); ok {
		t.Fatal("zero weight should remove the entry")
	}
	if targets := m.clearCol(1); len(targets) != 1 || targets[0] != 3 {
		t.Fatalf("unexpected cleared targets: %v", targets)
	}
	if m.nnz != 1 || len(m.outgoing(1)) != 0 {
		t.Fatalf("unexpected state after clear: nnz=%d", m.nnz)
	}
	if sources := m.clearRow(3); len(sources) != 1 || sources[0] != 0 {
		t.Fatalf("unexpected cleared sources: %v", sources)
	}
	if m.nnz != 0 || len(m.targetRows()) != 0 {
		t.Fatalf("matrix not empty: nnz=%d", m.nnz)
	}
}

func TestNetGrowsAndReusesIDs(t *testing.T) {
	n, err := New(Options{Registry: newTestRegistry(t), Logger: zerolog.Nop(), InitialNodes: 2, InitialElements: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, mustNode(t, n, nodetype.TypeRegister, model.RootNodespace, NodeOptions{}))
	}
	if ids[0] != "n0001" || ids[4] != "n0005" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if err := n.SetNodeActivation(ids[0], 0.5); err != nil {
		t.Fatalf("set activation: %v", err)
	}
	mustLink(t, n, ids[0], "gen", ids[4], "gen", 1)

	concept := mustNode(t, n, nodetype.TypeConcept, model.RootNodespace, NodeOptions{})
	nodes, elements := n.Capacity()
	if nodes < 6 || elements < 14 {
		t.Fatalf("tables did not grow: nodes=%d elements=%d", nodes, elements)
	}
	if got := mustInfo(t, n, ids[0]).GateActivations["gen"]; got != 0.5 {
		t.Fatalf("activation lost during growth: %f", got)
	}
	if _, err := n.Link(ids[0], "gen", ids[4], "gen"); err != nil {
		t.Fatalf("link lost during growth: %v", err)
	}

	if err := n.DeleteNode(ids[1]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := n.DeleteNode(ids[3]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := mustNode(t, n, nodetype.TypeRegister, model.RootNodespace, NodeOptions{}); got != ids[1] {
		t.Fatalf("expected lowest freed id %s, got %s", ids[1], got)
	}
	if got := mustInfo(t, n, concept).Type; got != nodetype.TypeConcept {
		t.Fatalf("unexpected type %s", got)
	}
	if count, _, _ := n.Counts(); count != 5 {
		t.Fatalf("node count=%d want=5", count)
	}
}
