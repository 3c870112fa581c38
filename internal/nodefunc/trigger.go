package nodefunc

import (
	"nodenet/internal/nodetype"
)

// Trigger conditions.
const (
	ConditionEqual   = "="
	ConditionGreater = ">"
)

func triggerSpec() nodetype.Spec {
	return nodetype.Spec{
		Name:       nodetype.TypeTrigger,
		SlotTypes:  []string{"gen", "sub"},
		GateTypes:  []string{"gen", "sur"},
		Parameters: []string{"timeout", "condition", "response"},
		ParameterDefaults: map[string]any{
			"timeout":   10,
			"condition": ConditionGreater,
			"response":  0.0,
		},
		ParameterValues: map[string][]string{"condition": {ConditionEqual, ConditionGreater}},
		GateDefaults: map[string]nodetype.GateParameters{
			"sur": {Minimum: -1, Maximum: 1, Threshold: -1, Amplification: 1},
		},
		Func: trigger,
	}
}

// trigger waits, while requested through sub, for its gen slot to meet the
// condition. It confirms on sur when the condition holds and fails once
// timeout steps pass without it.
func trigger(_ nodetype.API, node nodetype.Node, sheaf string, params nodetype.Parameters) error {
	if sheaf != nodetype.DefaultSheaf {
		return nil
	}
	sub := slot(node, "sub", sheaf)
	gen := slot(node, "gen", sheaf)
	if sub <= 0 {
		node.SetState("remaining", nil)
		node.SetActivation(0)
		return setGates(node, sheaf, map[string]float64{})
	}

	response := params.Float("response", 0)
	met := gen > response
	if params.String("condition", ConditionGreater) == ConditionEqual {
		met = gen == response
	}
	if met {
		node.SetActivation(1)
		return setGates(node, sheaf, map[string]float64{"gen": 1, "sur": 1})
	}

	remaining := int(params.Float("timeout", 10))
	if v, ok := node.State("remaining"); ok && v != nil {
		remaining = int(nodetype.Parameters{"v": v}.Float("v", float64(remaining)))
	}
	remaining--
	node.SetState("remaining", remaining)
	if remaining <= 0 {
		node.SetActivation(-1)
		return setGates(node, sheaf, map[string]float64{"sur": -1})
	}
	node.SetActivation(0)
	return setGates(node, sheaf, map[string]float64{})
}
