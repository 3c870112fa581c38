// Package nodefunc provides the built-in node types and their node
// functions.
package nodefunc

import (
	"fmt"

	"nodenet/internal/nodetype"
)

// DirectionalGateTypes are the gate types an Activator can control.
var DirectionalGateTypes = []string{"por", "ret", "sub", "sur", "cat", "exp", "sym", "ref"}

var conceptGates = []string{"gen", "por", "ret", "sub", "sur", "cat", "exp", "sym", "ref"}

// StandardSpecs returns the specs of every built-in node type.
func StandardSpecs() []nodetype.Spec {
	return []nodetype.Spec{
		{
			Name:       nodetype.TypeComment,
			Parameters: []string{"comment"},
		},
		{
			Name:      nodetype.TypeRegister,
			SlotTypes: []string{"gen"},
			GateTypes: []string{"gen"},
			Func:      register,
		},
		{
			Name:              nodetype.TypeSensor,
			GateTypes:         []string{"gen"},
			Parameters:        []string{"datasource"},
			ParameterDefaults: map[string]any{"datasource": ""},
			Func:              sensor,
		},
		{
			Name:              nodetype.TypeActor,
			SlotTypes:         []string{"gen"},
			GateTypes:         []string{"gen"},
			Parameters:        []string{"datatarget"},
			ParameterDefaults: map[string]any{"datatarget": ""},
			Func:              actor,
		},
		{
			Name:      nodetype.TypeConcept,
			SlotTypes: []string{"gen"},
			GateTypes: conceptGates,
			Func:      concept,
		},
		scriptSpec(),
		pipeSpec(),
		triggerSpec(),
		{
			Name:            nodetype.TypeActivator,
			SlotTypes:       []string{"gen"},
			Parameters:      []string{"type"},
			ParameterValues: map[string][]string{"type": DirectionalGateTypes},
			Func:            activator,
		},
	}
}

// RegisterStandard adds every built-in node type to reg.
func RegisterStandard(reg *nodetype.Registry) error {
	if _, err := reg.Reload(StandardSpecs()...); err != nil {
		return fmt.Errorf("register standard node types: %w", err)
	}
	return nil
}

func slot(node nodetype.Node, name, sheaf string) float64 {
	v, err := node.SlotActivation(name, sheaf)
	if err != nil {
		return 0
	}
	return v
}

func register(_ nodetype.API, node nodetype.Node, sheaf string, _ nodetype.Parameters) error {
	input := slot(node, "gen", sheaf)
	if sheaf == nodetype.DefaultSheaf {
		node.SetActivation(input)
	}
	return node.GateFunction("gen", input, sheaf)
}

func concept(_ nodetype.API, node nodetype.Node, sheaf string, _ nodetype.Parameters) error {
	input := slot(node, "gen", sheaf)
	if sheaf == nodetype.DefaultSheaf {
		node.SetActivation(input)
	}
	for _, gate := range node.GateTypes() {
		if err := node.GateFunction(gate, input, sheaf); err != nil {
			return err
		}
	}
	return nil
}

// sensor reads its datasource from the world, or from the modulator of the
// same name when one is set.
func sensor(api nodetype.API, node nodetype.Node, sheaf string, params nodetype.Parameters) error {
	name := params.String("datasource", "")
	value := 0.0
	if name != "" {
		if v, ok := api.Modulator(name); ok {
			value = v
		} else if v, ok := api.Datasource(name); ok {
			value = v
		}
	}
	if sheaf == nodetype.DefaultSheaf {
		node.SetActivation(value)
	}
	return node.GateFunction("gen", value, sheaf)
}

// actor writes its gen slot to its datatarget, or to the modulator of the
// same name when one is set, and passes the world's feedback to its gate.
func actor(api nodetype.API, node nodetype.Node, sheaf string, params nodetype.Parameters) error {
	name := params.String("datatarget", "")
	input := slot(node, "gen", sheaf)
	feedback := 0.0
	if name != "" && sheaf == nodetype.DefaultSheaf {
		if _, ok := api.Modulator(name); ok {
			api.SetModulator(name, input)
			feedback = input
		} else {
			api.AddToDatatarget(name, input)
			if v, ok := api.DatatargetFeedback(name); ok {
				feedback = v
			}
		}
		node.SetActivation(input)
	}
	return node.GateFunction("gen", feedback, sheaf)
}

func activator(_ nodetype.API, node nodetype.Node, sheaf string, _ nodetype.Parameters) error {
	if sheaf == nodetype.DefaultSheaf {
		node.SetActivation(slot(node, "gen", sheaf))
	}
	return nil
}
