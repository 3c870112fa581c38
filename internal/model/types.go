package model

// SnapshotVersion is the record version written by this engine. Records
// carrying any other version are rejected on load.
const SnapshotVersion = 1

// RootNodespace is the id of the implicit root nodespace of every net.
const RootNodespace = "Root"

// NodenetRecord is the language-agnostic persisted form of one node net.
type NodenetRecord struct {
	Version    int                        `json:"version"`
	UID        string                     `json:"uid"`
	Name       string                     `json:"name"`
	Owner      string                     `json:"owner"`
	Step       int                        `json:"step"`
	Nodes      map[string]NodeRecord      `json:"nodes"`
	Links      map[string]LinkRecord      `json:"links"`
	Nodespaces map[string]NodespaceRecord `json:"nodespaces"`
	Monitors   map[string]MonitorRecord   `json:"monitors"`
	Modulators map[string]float64         `json:"modulators"`
}

type NodeRecord struct {
	Type            string                         `json:"type"`
	Name            string                         `json:"name"`
	Position        []float64                      `json:"position"`
	Parameters      map[string]any                 `json:"parameters,omitempty"`
	State           map[string]any                 `json:"state,omitempty"`
	GateParameters  map[string]GateParameterRecord `json:"gate_parameters,omitempty"`
	GateFunctions   map[string]string              `json:"gate_functions,omitempty"`
	Activation      float64                        `json:"activation,omitempty"`
	GateActivations map[string]float64             `json:"gate_activations,omitempty"`
	ParentNodespace string                         `json:"parent_nodespace"`
}

// GateParameterRecord holds only the gate parameters that differ from the
// node type's defaults. Nil fields inherit the type default.
type GateParameterRecord struct {
	Minimum       *float64 `json:"minimum,omitempty"`
	Maximum       *float64 `json:"maximum,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`
	Amplification *float64 `json:"amplification,omitempty"`
	Decay         *float64 `json:"decay,omitempty"`
	Rho           *float64 `json:"rho,omitempty"`
	Theta         *float64 `json:"theta,omitempty"`
	SpreadSheaves *bool    `json:"spreadsheaves,omitempty"`
}

// Empty reports whether the record carries no overrides.
func (r GateParameterRecord) Empty() bool {
	return r.Minimum == nil && r.Maximum == nil && r.Threshold == nil && r.Amplification == nil &&
		r.Decay == nil && r.Rho == nil && r.Theta == nil && r.SpreadSheaves == nil
}

type LinkRecord struct {
	SourceNodeUID  string  `json:"source_node_uid"`
	SourceGateName string  `json:"source_gate_name"`
	TargetNodeUID  string  `json:"target_node_uid"`
	TargetSlotName string  `json:"target_slot_name"`
	Weight         float64 `json:"weight"`
	Certainty      float64 `json:"certainty"`
}

type NodespaceRecord struct {
	Name            string    `json:"name"`
	Position        []float64 `json:"position"`
	ParentNodespace string    `json:"parent_nodespace"`
	Index           int       `json:"index"`
	// ActivatorValues are directional activator values set on the
	// nodespace, keyed by gate type.
	ActivatorValues map[string]float64 `json:"activator_values,omitempty"`
}

// MonitorRecord persists a monitor. Classname selects which of the
// remaining fields are meaningful.
type MonitorRecord struct {
	Classname     string          `json:"classname"`
	Name          string          `json:"name"`
	NodeUID       string          `json:"node_uid,omitempty"`
	Target        string          `json:"target,omitempty"`
	Type          string          `json:"type,omitempty"`
	Sheaf         string          `json:"sheaf,omitempty"`
	SourceNodeUID string          `json:"source_node_uid,omitempty"`
	GateName      string          `json:"gate_name,omitempty"`
	TargetNodeUID string          `json:"target_node_uid,omitempty"`
	SlotName      string          `json:"slot_name,omitempty"`
	Modulator     string          `json:"modulator,omitempty"`
	Values        map[int]float64 `json:"values"`
}
