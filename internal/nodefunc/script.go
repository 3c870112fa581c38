package nodefunc

import (
	"nodenet/internal/nodetype"
)

// Script and Pipe nodes track their phase as an activation band.
const (
	phaseFailed     = -1.0
	phaseInactive   = 0.0
	phasePreparing  = 0.01
	phaseSuppressed = 0.3
	phaseRequesting = 0.5
	phasePending    = 0.7
	phaseConfirmed  = 1.0
)

func scriptSpec() nodetype.Spec {
	chain := nodetype.DefaultGateParameters()
	chain.Threshold = -1
	return nodetype.Spec{
		Name:      nodetype.TypeScript,
		SlotTypes: []string{"gen", "por", "ret", "sub", "sur"},
		GateTypes: []string{"gen", "por", "ret", "sub", "sur", "cat", "exp"},
		GateDefaults: map[string]nodetype.GateParameters{
			"por": chain,
			"ret": chain,
			"sub": chain,
			"sur": chain,
		},
		Parameters:        []string{"expectation", "wait"},
		ParameterDefaults: map[string]any{"expectation": 1.0, "wait": 10},
		Func:              script,
	}
}

func pipeSpec() nodetype.Spec {
	wide := nodetype.DefaultGateParameters()
	wide.Minimum = -100
	wide.Maximum = 100
	wide.Threshold = -100
	spreading := wide
	spreading.SpreadSheaves = true

	defaults := make(map[string]nodetype.GateParameters)
	for _, gate := range []string{"gen", "por", "ret", "sur", "exp"} {
		defaults[gate] = wide
	}
	defaults["sub"] = spreading
	defaults["cat"] = spreading

	return nodetype.Spec{
		Name:              nodetype.TypePipe,
		SlotTypes:         []string{"gen", "por", "ret", "sub", "sur", "cat", "exp"},
		GateTypes:         []string{"gen", "por", "ret", "sub", "sur", "cat", "exp"},
		GateDefaults:      defaults,
		Parameters:        []string{"expectation", "wait"},
		ParameterDefaults: map[string]any{"expectation": 1.0, "wait": 10},
		Func:              script,
	}
}

// phase returns the phase of a sheaf. The default sheaf's phase is the
// node activation; other sheaves keep theirs in node state.
func phase(node nodetype.Node, sheaf string) float64 {
	if sheaf == nodetype.DefaultSheaf {
		return node.Activation()
	}
	if v, ok := node.State("phase:" + sheaf); ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return phaseInactive
}

func setPhase(node nodetype.Node, sheaf string, value float64) {
	if sheaf == nodetype.DefaultSheaf {
		node.SetActivation(value)
		return
	}
	node.SetState("phase:"+sheaf, value)
}

func countdown(node nodetype.Node, sheaf string) int {
	v, _ := node.State("wait:" + sheaf)
	return int(nodetype.Parameters{"v": v}.Float("v", 0))
}

// script drives the request/confirm chain shared by Script and Pipe nodes.
// The transition uses the phase and slot values as they were when the
// call started.
func script(_ nodetype.API, node nodetype.Node, sheaf string, params nodetype.Parameters) error {
	sub := slot(node, "sub", sheaf)
	por := slot(node, "por", sheaf)
	ret := slot(node, "ret", sheaf)
	sur := slot(node, "sur", sheaf)
	current := phase(node, sheaf)

	if sub < phasePreparing {
		setPhase(node, sheaf, phaseInactive)
		node.SetState("wait:"+sheaf, 0)
		return setGates(node, sheaf, map[string]float64{})
	}

	expectation := params.Float("expectation", 1)
	wait := int(params.Float("wait", 10))
	next := current
	switch {
	case current < phaseInactive:
		next = phaseFailed
	case current >= phaseConfirmed:
		next = phaseConfirmed
	case current < phasePreparing:
		next = phasePreparing
	case current < phaseRequesting:
		if por < 0 {
			next = phaseSuppressed
		} else {
			next = phaseRequesting
		}
	default:
		switch {
		case sur >= expectation:
			next = phaseConfirmed
		case sur < 0:
			next = phaseFailed
		case current < phasePending:
			next = phasePending
			node.SetState("wait:"+sheaf, wait)
		default:
			left := countdown(node, sheaf) - 1
			node.SetState("wait:"+sheaf, left)
			if left <= 0 {
				next = phaseFailed
			}
		}
	}
	setPhase(node, sheaf, next)

	gates := map[string]float64{
		"gen": next,
		"por": -1,
		"ret": 1,
	}
	if next >= phaseConfirmed {
		gates["por"] = 1
		if ret == 0 {
			gates["sur"] = 1
		}
	}
	if next < phaseInactive {
		gates["sur"] = -1
	}
	if next >= phaseRequesting && next < phaseConfirmed {
		gates["sub"] = 1
		gates["cat"] = 1
	}
	return setGates(node, sheaf, gates)
}

// setGates evaluates every gate of node for sheaf, feeding 0 to gates
// missing from values.
func setGates(node nodetype.Node, sheaf string, values map[string]float64) error {
	for _, gate := range node.GateTypes() {
		if err := node.GateFunction(gate, values[gate], sheaf); err != nil {
			return err
		}
	}
	return nil
}
