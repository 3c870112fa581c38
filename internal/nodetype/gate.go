package nodetype

import "golang.org/x/exp/constraints"

// GateParameters configures the transfer stage of one gate.
type GateParameters struct {
	Minimum       float64
	Maximum       float64
	Threshold     float64
	Amplification float64
	Decay         float64
	Rho           float64
	Theta         float64
	SpreadSheaves bool
	// Function names a gate function from the registry catalog.
	Function string
}

// DefaultGateParameters returns the parameters every gate starts from
// unless its node type declares otherwise.
func DefaultGateParameters() GateParameters {
	return GateParameters{
		Minimum:       -1,
		Maximum:       1,
		Threshold:     0,
		Amplification: 1,
		Function:      GateFunctionIdentity,
	}
}

// Transfer computes a gate's activation from its raw input and the
// directional activator factor of the node's nodespace.
//
// A zero factor closes the gate: the result is 0 and no clamp is applied.
// Otherwise fn transforms the input, the threshold is tested against the
// factor-scaled value and the amplified result is clamped to
// [Minimum, Maximum].
func (p GateParameters) Transfer(input, factor float64, fn GateFunc) float64 {
	if factor == 0 {
		return 0
	}
	if fn != nil {
		input = fn(input, p.Rho, p.Theta)
	}
	out := 0.0
	if input*factor >= p.Threshold {
		out = input * p.Amplification * factor
	}
	return Clamp(out, p.Minimum, p.Maximum)
}

// Clamp limits value to [min, max].
func Clamp[T constraints.Float](value, min, max T) T {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}
