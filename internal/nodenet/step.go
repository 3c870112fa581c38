package nodenet

import (
	"context"
	"fmt"
	"sort"

	"nodenet/internal/nodetype"
	"nodenet/internal/world"
)

// Reserved operator priorities.
const (
	PriorityPropagate = 0
	PriorityCalculate = 1
)

// StepOperator is one phase of a step. Operators run in ascending priority
// order while the net lock is held.
type StepOperator interface {
	Name() string
	Priority() int
	Execute(ctx context.Context, sc *StepContext) error
}

// StepContext is handed to step operators. It exposes the same surface node
// functions see plus whole-net helpers.
type StepContext struct {
	net *Net
}

func (sc *StepContext) API() nodetype.API {
	return netAPI{net: sc.net}
}

func (sc *StepContext) Step() int {
	return sc.net.stepCount
}

// Propagate re-propagates into the slots of the given nodes only.
func (sc *StepContext) Propagate(nodeIDs ...string) {
	subset := make(map[int]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		if idx, ok := sc.net.store.lookup(id); ok {
			subset[idx] = true
		}
	}
	sc.net.propagate(subset)
}

// AddStepOperator installs an auxiliary operator. Priorities 0 and 1 are
// reserved for propagation and calculation.
func (n *Net) AddStepOperator(op StepOperator) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addStepOperator(op)
}

func (n *Net) addStepOperator(op StepOperator) error {
	if op.Priority() <= PriorityCalculate {
		return fmt.Errorf("%w: %s priority %d is reserved", ErrInvalidOperator, op.Name(), op.Priority())
	}
	for _, existing := range n.operators {
		if existing.Name() == op.Name() {
			return fmt.Errorf("%w: operator %s", ErrDuplicateID, op.Name())
		}
	}
	n.operators = append(n.operators, op)
	sort.SliceStable(n.operators, func(i, j int) bool {
		return n.operators[i].Priority() < n.operators[j].Priority()
	})
	return nil
}

func (n *Net) RemoveStepOperator(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, op := range n.operators {
		if op.Name() != name {
			continue
		}
		if op.Priority() <= PriorityCalculate {
			return fmt.Errorf("%w: %s is built in", ErrInvalidOperator, name)
		}
		n.operators = append(n.operators[:i], n.operators[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: operator %s", ErrNotFound, name)
}

// StepOperators lists operator names in execution order.
func (n *Net) StepOperators() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	names := make([]string, 0, len(n.operators))
	for _, op := range n.operators {
		names = append(names, op.Name())
	}
	return names
}

// Step runs one full step. A failing operator aborts the step before the
// step counter advances, marks the net inactive and records the error.
func (n *Net) Step(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s, ok := n.world.(world.Snapshotter); ok {
		s.Snapshot(n.uid)
	}

	sc := &StepContext{net: n}
	for _, op := range n.operators {
		if err := op.Execute(ctx, sc); err != nil {
			n.active = false
			n.lastErr = err
			n.stoppedAt = n.stepCount
			n.logger.Error().Err(err).Str("operator", op.Name()).Int("step", n.stepCount).Msg("step failed")
			return err
		}
	}

	if c, ok := n.world.(world.Committer); ok {
		c.Commit(n.uid)
	}
	n.stepCount++
	n.expireLocks()
	n.applyUnlocks()
	n.sampleMonitors()
	n.changes.prune(n.stepCount)
	return nil
}

// GateDecay leaks activation out of gates whose decay parameter is set:
// each step the gate keeps (1 - decay) of its value.
type GateDecay struct{}

func (GateDecay) Name() string  { return "gate_decay" }
func (GateDecay) Priority() int { return 100 }

func (GateDecay) Execute(_ context.Context, sc *StepContext) error {
	st := sc.net.store
	for e := 0; e < st.elemHigh; e++ {
		if st.elemNode[e] < 0 || st.gDecay[e] <= 0 {
			continue
		}
		keep := 1 - st.gDecay[e]
		st.a[e] = nodetype.Clamp(st.a[e]*keep, st.gMin[e], st.gMax[e])
		for _, sv := range st.gateSheaves[e] {
			sv.activation = nodetype.Clamp(sv.activation*keep, st.gMin[e], st.gMax[e])
		}
	}
	return nil
}

// ModulatorDecay relaxes the listed modulators toward their baseline by
// Rate of the remaining distance each step. Modulators not yet set start
// at their baseline.
type ModulatorDecay struct {
	Baselines map[string]float64
	Rate      float64
}

func (ModulatorDecay) Name() string  { return "modulator_decay" }
func (ModulatorDecay) Priority() int { return 1000 }

func (m ModulatorDecay) Execute(_ context.Context, sc *StepContext) error {
	mods := sc.net.modulators
	for name, base := range m.Baselines {
		v, ok := mods[name]
		if !ok {
			mods[name] = base
			continue
		}
		mods[name] = v + (base-v)*m.Rate
	}
	return nil
}
