package nodenet

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"nodenet/internal/model"
	"nodenet/internal/nodetype"
)

func normalize(t *testing.T, rec model.NodenetRecord) model.NodenetRecord {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out model.NodenetRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func buildSampleNet(t *testing.T) *Net {
	t.Helper()
	n := newTestNet(t)
	inner, err := n.CreateNodespace(model.RootNodespace, "inner", "", []float64{10, 20})
	if err != nil {
		t.Fatalf("create nodespace: %v", err)
	}
	s := sustained(t, n, 1)
	threshold := 0.2
	c := mustNode(t, n, nodetype.TypeConcept, inner, NodeOptions{
		Name:           "concept",
		Position:       []float64{1, 2, 3},
		GateParameters: map[string]model.GateParameterRecord{"sub": {Threshold: &threshold}},
		GateFunctions:  map[string]string{"cat": nodetype.GateFunctionSigmoid},
	})
	sensor := mustNode(t, n, nodetype.TypeSensor, model.RootNodespace, NodeOptions{
		Name:       "eye",
		Parameters: map[string]any{"datasource": "light"},
	})
	mustLink(t, n, s, "gen", c, "gen", 0.5)
	mustLink(t, n, sensor, "gen", c, "gen", -0.25)
	if err := n.SetState(c, "seen", "yes"); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := n.SetActivatorValue(inner, "ret", 0.5); err != nil {
		t.Fatalf("set activator: %v", err)
	}
	if _, err := n.AddNodeMonitor(c, "gen", MonitorGate, "", ""); err != nil {
		t.Fatalf("add monitor: %v", err)
	}
	n.SetModulator("arousal", 0.3)
	mustStep(t, n, 2)
	return n
}

func TestExportImportRoundTrip(t *testing.T) {
	n := buildSampleNet(t)
	before := normalize(t, n.Export())

	if len(before.Nodes) != 3 || len(before.Links) != 3 || len(before.Nodespaces) != 2 {
		t.Fatalf("unexpected export sizes: nodes=%d links=%d nodespaces=%d", len(before.Nodes), len(before.Links), len(before.Nodespaces))
	}

	loaded, err := FromRecord(before, Options{Registry: n.Registry(), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	after := normalize(t, loaded.Export())
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip mismatch:\nbefore=%+v\nafter=%+v", before, after)
	}
	if loaded.CurrentStep() != 2 {
		t.Fatalf("step=%d want=2", loaded.CurrentStep())
	}

	// Both nets continue identically.
	mustStep(t, n, 1)
	mustStep(t, loaded, 1)
	for _, id := range n.NodeIDs() {
		a, b := mustInfo(t, n, id), mustInfo(t, loaded, id)
		if !reflect.DeepEqual(a.GateActivations, b.GateActivations) {
			t.Fatalf("node %s diverged: %v vs %v", id, a.GateActivations, b.GateActivations)
		}
	}
}

func TestExportRecordsOnlyNonDefaultGateParameters(t *testing.T) {
	n := buildSampleNet(t)
	rec := n.Export()
	for id, node := range rec.Nodes {
		if node.Type != nodetype.TypeConcept {
			if len(node.GateParameters) != 0 || len(node.GateFunctions) != 0 {
				t.Fatalf("node %s exported default gate parameters: %+v", id, node.GateParameters)
			}
			continue
		}
		if len(node.GateParameters) != 1 || *node.GateParameters["sub"].Threshold != 0.2 {
			t.Fatalf("unexpected gate parameters: %+v", node.GateParameters)
		}
		if node.GateParameters["sub"].Maximum != nil {
			t.Fatal("default maximum exported")
		}
		if node.GateFunctions["cat"] != nodetype.GateFunctionSigmoid || len(node.GateFunctions) != 1 {
			t.Fatalf("unexpected gate functions: %+v", node.GateFunctions)
		}
	}
}

func TestFromRecordRejectsBadRecords(t *testing.T) {
	n := buildSampleNet(t)
	opts := Options{Registry: n.Registry(), Logger: zerolog.Nop()}

	rec := n.Export()
	rec.Version = model.SnapshotVersion + 1
	if _, err := FromRecord(rec, opts); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	rec = n.Export()
	rec.Links["bogus"] = model.LinkRecord{SourceNodeUID: "n0001", SourceGateName: "gen", TargetNodeUID: "n0001", TargetSlotName: "gen", Weight: 1}
	if _, err := FromRecord(rec, opts); !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
	}

	rec = n.Export()
	id := model.LinkID("n0001", "por", "gen", "n0001")
	rec.Links[id] = model.LinkRecord{SourceNodeUID: "n0001", SourceGateName: "por", TargetNodeUID: "n0001", TargetSlotName: "gen", Weight: 1}
	if _, err := FromRecord(rec, opts); !errors.Is(err, ErrUnknownGate) {
		t.Fatalf("expected ErrUnknownGate, got %v", err)
	}

	rec = n.Export()
	node := rec.Nodes["n0001"]
	node.Type = "Missing"
	rec.Nodes["n0001"] = node
	if _, err := FromRecord(rec, opts); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestNodespaceData(t *testing.T) {
	n := buildSampleNet(t)
	inner := ""
	for _, id := range n.NodespaceIDs() {
		if id != model.RootNodespace {
			inner = id
		}
	}

	data, err := n.NodespaceData(inner, 0)
	if err != nil {
		t.Fatalf("nodespace data: %v", err)
	}
	if len(data.Nodes) != 1 || len(data.Links) != 2 || len(data.Monitors) != 1 {
		t.Fatalf("unexpected data: nodes=%d links=%d monitors=%d", len(data.Nodes), len(data.Links), len(data.Monitors))
	}
	if data.Nodespaces[inner].ParentNodespace != model.RootNodespace {
		t.Fatalf("unexpected nodespace record: %+v", data.Nodespaces[inner])
	}

	root, err := n.NodespaceData(model.RootNodespace, 1)
	if err != nil {
		t.Fatalf("root data: %v", err)
	}
	if len(root.Nodes) != 1 || len(root.Nodespaces) != 2 {
		t.Fatalf("unexpected root data: nodes=%d nodespaces=%d", len(root.Nodes), len(root.Nodespaces))
	}
	if _, err := n.NodespaceData("missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChangesSinceStep(t *testing.T) {
	n, err := New(Options{Registry: newTestRegistry(t), Logger: zerolog.Nop(), HistorySteps: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a := mustNode(t, n, nodetype.TypeRegister, model.RootNodespace, NodeOptions{})
	mustStep(t, n, 1)
	b := mustNode(t, n, nodetype.TypeRegister, model.RootNodespace, NodeOptions{})
	mustLink(t, n, a, "gen", b, "gen", 1)
	mustStep(t, n, 1)
	if err := n.DeleteNode(a); err != nil {
		t.Fatalf("delete: %v", err)
	}

	diff, err := n.Changes(1)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if !reflect.DeepEqual(diff.NodesChanged, []string{b}) || !reflect.DeepEqual(diff.NodesDeleted, []string{a}) {
		t.Fatalf("unexpected node changes: %+v", diff)
	}
	if len(diff.LinksDeleted) != 1 || len(diff.LinksChanged) != 0 {
		t.Fatalf("unexpected link changes: %+v", diff)
	}

	mustStep(t, n, 4)
	if _, err := n.Changes(1); !errors.Is(err, ErrHistoryExpired) {
		t.Fatalf("expected ErrHistoryExpired, got %v", err)
	}
	diff, err = n.Changes(n.CurrentStep())
	if err != nil || len(diff.NodesChanged)+len(diff.NodesDeleted) != 0 {
		t.Fatalf("expected empty diff, got %+v err=%v", diff, err)
	}
}

func TestMonitorValuesStayWithinHistory(t *testing.T) {
	n, err := New(Options{UID: "short", Registry: newTestRegistry(t), Logger: zerolog.Nop(), HistorySteps: 3})
	if err != nil {
		t.Fatalf("new net: %v", err)
	}
	r := sustained(t, n, 1)
	uid, err := n.AddNodeMonitor(r, "gen", MonitorGate, "", "")
	if err != nil {
		t.Fatalf("node monitor: %v", err)
	}

	mustStep(t, n, 5)

	m, _ := n.Monitor(uid)
	if !reflect.DeepEqual(m.Values, map[int]float64{3: 1, 4: 1, 5: 1}) {
		t.Fatalf("unexpected monitor values: %v", m.Values)
	}
}

func TestMonitorsRecordEveryStep(t *testing.T) {
	n := newTestNet(t)
	r := sustained(t, n, 1)
	gate, err := n.AddNodeMonitor(r, "gen", MonitorGate, "", "")
	if err != nil {
		t.Fatalf("node monitor: %v", err)
	}
	link, err := n.AddLinkMonitor(r, "gen", r, "gen", "")
	if err != nil {
		t.Fatalf("link monitor: %v", err)
	}
	mod := n.AddModulatorMonitor("arousal", "")
	n.SetModulator("arousal", 0.4)
	if _, err := n.AddNodeMonitor(r, "gen", "neither", "", ""); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}

	mustStep(t, n, 1)
	if err := n.SetLinkWeight(r, "gen", r, "gen", 0.5); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	mustStep(t, n, 1)

	m, _ := n.Monitor(gate)
	if !reflect.DeepEqual(m.Values, map[int]float64{1: 1, 2: 0.5}) {
		t.Fatalf("unexpected gate values: %v", m.Values)
	}
	m, _ = n.Monitor(link)
	if !reflect.DeepEqual(m.Values, map[int]float64{1: 1, 2: 0.5}) {
		t.Fatalf("unexpected link values: %v", m.Values)
	}
	m, _ = n.Monitor(mod)
	if m.Values[2] != 0.4 {
		t.Fatalf("unexpected modulator values: %v", m.Values)
	}
	if err := n.RemoveMonitor(gate); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(n.MonitorIDs()) != 2 {
		t.Fatalf("unexpected monitors: %v", n.MonitorIDs())
	}
}

func TestOpenSheafFansOutToTargets(t *testing.T) {
	forker := func(spread bool) nodetype.Spec {
		sub := nodetype.DefaultGateParameters()
		sub.SpreadSheaves = spread
		return nodetype.Spec{
			Name:         "Forker",
			GateTypes:    []string{"sub"},
			GateDefaults: map[string]nodetype.GateParameters{"sub": sub},
			Func: func(_ nodetype.API, node nodetype.Node, sheaf string, _ nodetype.Parameters) error {
				_, err := node.OpenSheaf("sub", 1, sheaf)
				return err
			},
		}
	}

	t.Run("spreading", func(t *testing.T) {
		n := newTestNet(t, forker(true))
		f := mustNode(t, n, "Forker", model.RootNodespace, NodeOptions{})
		target := mustNode(t, n, nodetype.TypeRegister, model.RootNodespace, NodeOptions{})
		mustLink(t, n, f, "sub", target, "gen", 1)

		mustStep(t, n, 2)

		child := nodetype.DefaultSheaf + "-" + target
		info := mustInfo(t, n, target)
		if got := info.GateSheaves["gen"][child]; got != 1 {
			t.Fatalf("child sheaf activation=%f want=1 (%v)", got, info.GateSheaves)
		}
		if info.SlotActivations["gen"] != 0 {
			t.Fatalf("default sheaf received %f", info.SlotActivations["gen"])
		}
	})

	t.Run("collapsing", func(t *testing.T) {
		n := newTestNet(t, forker(false))
		f := mustNode(t, n, "Forker", model.RootNodespace, NodeOptions{})
		target := mustNode(t, n, nodetype.TypeRegister, model.RootNodespace, NodeOptions{})
		actor := mustNode(t, n, nodetype.TypeActor, model.RootNodespace, NodeOptions{})
		mustLink(t, n, f, "sub", target, "gen", 1)
		mustLink(t, n, f, "sub", actor, "gen", 1)

		mustStep(t, n, 2)

		info := mustInfo(t, n, target)
		if len(info.GateSheaves) != 0 {
			t.Fatalf("unexpected sheaves: %v", info.GateSheaves)
		}
		if info.SlotActivations["gen"] != 1 {
			t.Fatalf("child sheaf did not fall back to parent: %f", info.SlotActivations["gen"])
		}
	})
}

func TestActorsNeverReceiveSheaves(t *testing.T) {
	spreading := nodetype.DefaultGateParameters()
	spreading.SpreadSheaves = true
	n := newTestNet(t, nodetype.Spec{
		Name:         "Emitter",
		GateTypes:    []string{"gen"},
		GateDefaults: map[string]nodetype.GateParameters{"gen": spreading},
		Func: func(_ nodetype.API, node nodetype.Node, _ string, _ nodetype.Parameters) error {
			return node.GateFunction("gen", 1, "extra")
		},
	})
	e := mustNode(t, n, "Emitter", model.RootNodespace, NodeOptions{})
	actor := mustNode(t, n, nodetype.TypeActor, model.RootNodespace, NodeOptions{})
	reg := mustNode(t, n, nodetype.TypeRegister, model.RootNodespace, NodeOptions{})
	mustLink(t, n, e, "gen", actor, "gen", 1)
	mustLink(t, n, e, "gen", reg, "gen", 1)

	mustStep(t, n, 2)

	if got := mustInfo(t, n, reg).GateSheaves["gen"]["extra"]; got != 1 {
		t.Fatalf("register did not receive sheaf: %f", got)
	}
	if sheaves := mustInfo(t, n, actor).GateSheaves; len(sheaves) != 0 {
		t.Fatalf("actor received sheaves: %v", sheaves)
	}
}

func TestReloadNodeTypes(t *testing.T) {
	n := newTestNet(t, nativeSpec("Native"))
	s := sustained(t, n, 1)
	p := mustNode(t, n, "Native", model.RootNodespace, NodeOptions{Name: "native", Position: []float64{4, 5}})
	mustLink(t, n, s, "gen", p, "gen", 1)
	if err := n.SetState(p, "k", 1); err != nil {
		t.Fatalf("set state: %v", err)
	}

	reg := n.Registry()
	if _, err := reg.Register(nodetype.Spec{
		Name:      nodetype.TypeRegister,
		SlotTypes: []string{"gen"},
		GateTypes: []string{"gen"},
		Func: func(_ nodetype.API, node nodetype.Node, sheaf string, _ nodetype.Parameters) error {
			return node.GateFunction("gen", 0.25, sheaf)
		},
	}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	changed := nativeSpec("Native")
	changed.GateTypes = []string{"por", "ret"}
	if _, err := reg.Register(changed); err != nil {
		t.Fatalf("re-register native: %v", err)
	}

	recreated, err := n.ReloadNodeTypes()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(recreated, []string{p}) {
		t.Fatalf("unexpected recreated nodes: %v", recreated)
	}
	if n.LinkCount() != 1 {
		t.Fatalf("expected only the self-link to survive, got %d", n.LinkCount())
	}
	info := mustInfo(t, n, p)
	if info.Name != "native" || !reflect.DeepEqual(info.Position, []float64{4, 5}) || len(info.State) != 0 {
		t.Fatalf("unexpected recreated node: %+v", info)
	}
	if _, ok := info.GateActivations["ret"]; !ok {
		t.Fatalf("recreated node has old layout: %v", info.GateActivations)
	}

	mustStep(t, n, 1)
	if got := mustInfo(t, n, s).GateActivations["gen"]; got != 0.25 {
		t.Fatalf("register still runs the old function: %f", got)
	}
}

func TestReloadDropsParameterValuesNoLongerAllowed(t *testing.T) {
	mode := nativeSpec("Mode")
	mode.Parameters = []string{"mode", "gain"}
	mode.ParameterValues = map[string][]string{"mode": {"a", "b"}}
	n := newTestNet(t, mode)
	first := mustNode(t, n, "Mode", model.RootNodespace, NodeOptions{Name: "first", Parameters: map[string]any{"mode": "a", "gain": 3}})
	second := mustNode(t, n, "Mode", model.RootNodespace, NodeOptions{Name: "second", Parameters: map[string]any{"mode": "b"}})

	changed := nativeSpec("Mode")
	changed.SlotTypes = []string{"gen", "sub"}
	changed.Parameters = []string{"mode", "gain"}
	changed.ParameterDefaults = map[string]any{"mode": "b"}
	changed.ParameterValues = map[string][]string{"mode": {"b"}}
	if _, err := n.Registry().Register(changed); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	recreated, err := n.ReloadNodeTypes()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(recreated) != 2 {
		t.Fatalf("unexpected recreated nodes: %v", recreated)
	}
	if nodes, _, _ := n.Counts(); nodes != 2 {
		t.Fatalf("node count=%d want=2", nodes)
	}
	info := mustInfo(t, n, first)
	if info.Name != "first" || info.Parameters["mode"] != "b" || info.Parameters["gain"] != 3 {
		t.Fatalf("unexpected parameters after reload: %+v", info.Parameters)
	}
	if _, ok := info.SlotActivations["sub"]; !ok {
		t.Fatalf("recreated node has old layout: %v", info.SlotActivations)
	}
	if got := mustInfo(t, n, second).Parameters["mode"]; got != "b" {
		t.Fatalf("second mode=%v want=b", got)
	}
}
