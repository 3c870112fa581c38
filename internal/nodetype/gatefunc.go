package nodetype

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	GateFunctionIdentity  = "identity"
	GateFunctionAbsolute  = "absolute"
	GateFunctionSigmoid   = "sigmoid"
	GateFunctionTanh      = "tanh"
	GateFunctionReLU      = "relu"
	GateFunctionELU       = "elu"
	GateFunctionOneOverX  = "one_over_x"
	GateFunctionThreshold = "threshold"
)

var (
	ErrGateFunctionExists  = errors.New("gate function already registered")
	ErrUnknownGateFunction = errors.New("gate function not found")
)

// GateFunc transforms a gate's raw input before thresholding.
type GateFunc func(input, rho, theta float64) float64

func builtInGateFunctions() map[string]GateFunc {
	return map[string]GateFunc{
		GateFunctionIdentity: func(x, _, _ float64) float64 { return x },
		GateFunctionAbsolute: func(x, _, _ float64) float64 { return math.Abs(x) },
		GateFunctionSigmoid: func(x, _, theta float64) float64 {
			return 1.0 / (1.0 + math.Exp(-(x + theta)))
		},
		GateFunctionTanh: func(x, _, theta float64) float64 { return math.Tanh(x + theta) },
		GateFunctionReLU: func(x, _, theta float64) float64 {
			return math.Max(0, x+theta)
		},
		GateFunctionELU: func(x, rho, theta float64) float64 {
			x += theta
			if x > 0 {
				return x
			}
			if rho == 0 {
				rho = 1
			}
			return rho * (math.Exp(x) - 1)
		},
		GateFunctionOneOverX: func(x, _, _ float64) float64 {
			if x == 0 {
				return 0
			}
			return 1 / x
		},
		// step at theta, scaled by rho (rho == 0 means 1)
		GateFunctionThreshold: func(x, rho, theta float64) float64 {
			if x < theta {
				return 0
			}
			if rho == 0 {
				return 1
			}
			return rho
		},
	}
}

// RegisterGateFunction adds a gate function to the registry catalog.
func (r *Registry) RegisterGateFunction(name string, fn GateFunc) error {
	if name == "" {
		return errors.New("gate function name is required")
	}
	if fn == nil {
		return errors.New("gate function is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.gateFuncs[name]; exists {
		return fmt.Errorf("%w: %s", ErrGateFunctionExists, name)
	}
	r.gateFuncs[name] = fn
	return nil
}

// GateFunction resolves a gate function by name. The empty name resolves
// to identity.
func (r *Registry) GateFunction(name string) (GateFunc, error) {
	if name == "" {
		name = GateFunctionIdentity
	}
	r.mu.RLock()
	fn, ok := r.gateFuncs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateFunction, name)
	}
	return fn, nil
}

func (r *Registry) ListGateFunctions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateFuncs))
	for name := range r.gateFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
