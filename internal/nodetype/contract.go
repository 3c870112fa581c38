package nodetype

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// DefaultSheaf is the sheaf every gate and slot carries.
const DefaultSheaf = "default"

// Func is a node function. It is called once per sheaf the node's slots
// carry in the current step and updates the node's own gates and state.
type Func func(api API, node Node, sheaf string, params Parameters) error

// Node is the view of a node handed to its node function.
type Node interface {
	ID() string
	Type() string
	Name() string
	Nodespace() string

	// Activation is the node's scalar activation. Setting it also sets the
	// default sheaf of the gen gate when the type declares one.
	Activation() float64
	SetActivation(value float64)

	SlotActivation(slot, sheaf string) (float64, error)
	GateActivation(gate, sheaf string) (float64, error)
	// GateFunction runs the gate transfer for input and stores the result
	// for sheaf.
	GateFunction(gate string, input float64, sheaf string) error
	// OpenSheaf forks a child sheaf of parent on gate for every node the
	// gate links to, evaluates the gate for each and returns the new ids.
	OpenSheaf(gate string, input float64, parent string) ([]string, error)
	SlotTypes() []string
	GateTypes() []string

	Parameter(name string) (any, bool)
	State(key string) (any, bool)
	SetState(key string, value any)
}

// API is the net-level surface available to node functions.
type API interface {
	UID() string
	Step() int
	Logger() *zerolog.Logger

	// Datasource reads the latest world value; ok is false when the
	// world does not know the name.
	Datasource(name string) (value float64, ok bool)
	AddToDatatarget(name string, value float64) bool
	DatatargetFeedback(name string) (float64, bool)

	Modulator(name string) (float64, bool)
	SetModulator(name string, value float64)
	ChangeModulator(name string, diff float64)

	IsLocked(name string) bool
	Lock(name, key string, timeout int) error
	// Unlock releases a lock at the end of the current step.
	Unlock(name string)
}

// Parameters are a node's configuration values merged over its type defaults.
type Parameters map[string]any

// Float reads a numeric parameter, accepting the shapes produced by Go
// literals and by JSON decoding.
func (p Parameters) Float(name string, def float64) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (p Parameters) String(name, def string) string {
	switch v := p[name].(type) {
	case string:
		if v != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return def
}

// Clone returns a shallow copy.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
