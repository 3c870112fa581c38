package nodenet

import (
	"context"
	"fmt"

	"nodenet/internal/model"
	engine "nodenet/internal/nodenet"
	"nodenet/internal/nodetype"
	"nodenet/internal/platform"
)

// World names used by the demo net.
const (
	DemoDatasource = "light"
	DemoDatatarget = "motor"
)

// CreateDemo builds a small sensor-to-actor net with a two-step script
// chain in a child nodespace and a monitor on the actor.
func (c *Client) CreateDemo(ctx context.Context, uid string) (StepSummary, error) {
	net, err := c.runtime.CreateNodenet(ctx, platform.CreateOptions{UID: uid, Name: "demo", Owner: "nodenetctl"})
	if err != nil {
		return StepSummary{}, err
	}
	if err := buildDemo(net); err != nil {
		_ = c.runtime.DeleteNodenet(ctx, net.UID())
		return StepSummary{}, fmt.Errorf("build demo: %w", err)
	}
	if err := c.runtime.SaveNodenet(ctx, net.UID()); err != nil {
		return StepSummary{}, err
	}
	return summarize(net), nil
}

func buildDemo(net *engine.Net) error {
	b := demoBuilder{net: net}
	sensor := b.node(nodetype.TypeSensor, model.RootNodespace, "eye", map[string]any{"datasource": DemoDatasource})
	seen := b.node(nodetype.TypeConcept, model.RootNodespace, "seen", nil)
	motor := b.node(nodetype.TypeActor, model.RootNodespace, "wheel", map[string]any{"datatarget": DemoDatatarget})
	b.link(sensor, "gen", seen, "gen", 1)
	b.link(seen, "gen", motor, "gen", 0.5)

	plan := b.nodespace("plan")
	first := b.node(nodetype.TypeScript, plan, "approach", map[string]any{"wait": 5})
	second := b.node(nodetype.TypeScript, plan, "grab", map[string]any{"wait": 5})
	b.link(seen, "gen", first, "sub", 1)
	b.link(seen, "gen", second, "sub", 1)
	b.link(first, "por", second, "por", 1)
	b.link(second, "ret", first, "ret", 1)
	b.link(sensor, "gen", first, "sur", 1)
	b.node(nodetype.TypeComment, plan, "note", map[string]any{"comment": "approach, then grab"})

	if b.err != nil {
		return b.err
	}
	net.SetModulator("arousal", 0.5)
	_, err := net.AddNodeMonitor(motor, "gen", engine.MonitorGate, nodetype.DefaultSheaf, "wheel output")
	return err
}

// demoBuilder records the first error so construction reads linearly.
type demoBuilder struct {
	net *engine.Net
	err error
}

func (b *demoBuilder) nodespace(name string) string {
	if b.err != nil {
		return ""
	}
	id, err := b.net.CreateNodespace(model.RootNodespace, name, "", nil)
	b.err = err
	return id
}

func (b *demoBuilder) node(typeName, nodespace, name string, params map[string]any) string {
	if b.err != nil {
		return ""
	}
	id, err := b.net.CreateNode(typeName, nodespace, engine.NodeOptions{Name: name, Parameters: params})
	b.err = err
	return id
}

func (b *demoBuilder) link(source, gate, target, slot string, weight float64) {
	if b.err != nil {
		return
	}
	_, b.err = b.net.CreateLink(source, gate, target, slot, weight, 1)
}
