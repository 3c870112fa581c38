package nodetype

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Built-in type names the engine treats specially.
const (
	TypeComment   = "Comment"
	TypeRegister  = "Register"
	TypeSensor    = "Sensor"
	TypeActor     = "Actor"
	TypeConcept   = "Concept"
	TypeScript    = "Script"
	TypePipe      = "Pipe"
	TypeTrigger   = "Trigger"
	TypeActivator = "Activator"
)

var standardTypes = map[string]bool{
	TypeComment:   true,
	TypeRegister:  true,
	TypeSensor:    true,
	TypeActor:     true,
	TypeConcept:   true,
	TypeScript:    true,
	TypePipe:      true,
	TypeTrigger:   true,
	TypeActivator: true,
}

var (
	ErrUnknownType    = errors.New("node type not found")
	ErrInvalidSpec    = errors.New("invalid node type spec")
	ErrRegistryClosed = errors.New("node type registry closed")
)

// IsStandard reports whether name belongs to the engine's built-in type
// set. Every other type is calculated as a native module.
func IsStandard(name string) bool {
	return standardTypes[name]
}

// Spec declares a node type.
type Spec struct {
	Name      string
	SlotTypes []string
	GateTypes []string
	// GateDefaults overrides DefaultGateParameters per gate; gates not
	// listed use the defaults unchanged.
	GateDefaults      map[string]GateParameters
	Parameters        []string
	ParameterDefaults map[string]any
	// ParameterValues restricts parameters to an enumerated set.
	ParameterValues map[string][]string
	Func            Func
}

// Type is a registered, fully resolved node type.
type Type struct {
	Name              string
	SlotTypes         []string
	GateTypes         []string
	GateDefaults      map[string]GateParameters
	Parameters        []string
	ParameterDefaults map[string]any
	ParameterValues   map[string][]string
	Func              Func
	Standard          bool
	Revision          int
}

// SameLayout reports whether two types declare identical slots and gates,
// so instances of one can be rebound to the other in place.
func (t *Type) SameLayout(other *Type) bool {
	return equalStrings(t.SlotTypes, other.SlotTypes) && equalStrings(t.GateTypes, other.GateTypes)
}

func (t *Type) HasGate(name string) bool {
	return indexOf(t.GateTypes, name) >= 0
}

func (t *Type) HasSlot(name string) bool {
	return indexOf(t.SlotTypes, name) >= 0
}

func (t *Type) GateIndex(name string) int {
	return indexOf(t.GateTypes, name)
}

func (t *Type) SlotIndex(name string) int {
	return indexOf(t.SlotTypes, name)
}

// ElementCount is the number of storage elements an instance occupies:
// gate i and slot i share element i.
func (t *Type) ElementCount() int {
	if len(t.GateTypes) > len(t.SlotTypes) {
		return len(t.GateTypes)
	}
	return len(t.SlotTypes)
}

// Registry is the catalog of node types and gate functions. It is owned by
// its creator and passed explicitly to every net that uses it.
type Registry struct {
	mu        sync.RWMutex
	types     map[string]*Type
	gateFuncs map[string]GateFunc
	revision  int
	closed    bool
}

func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[string]*Type),
		gateFuncs: builtInGateFunctions(),
	}
}

// Register adds or replaces a node type. Replacing a type does not touch
// existing instances; nets pick up the new definition on ReloadNodeTypes.
func (r *Registry) Register(spec Spec) (*Type, error) {
	t, err := r.resolve(spec)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	r.revision++
	t.Revision = r.revision
	r.types[t.Name] = t
	return t, nil
}

// MustRegister panics when spec cannot be registered.
func (r *Registry) MustRegister(spec Spec) *Type {
	t, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Reload registers a batch of specs and returns the names whose
// definition changed. Either all specs are applied or none.
func (r *Registry) Reload(specs ...Spec) ([]string, error) {
	resolved := make([]*Type, 0, len(specs))
	for _, spec := range specs {
		t, err := r.resolve(spec)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	names := make([]string, 0, len(resolved))
	for _, t := range resolved {
		r.revision++
		t.Revision = r.revision
		r.types[t.Name] = t
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Registry) Get(name string) (*Type, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Revision increases with every registration.
func (r *Registry) Revision() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// Close rejects further registrations. Lookups keep working so running
// nets can finish their current step.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Registry) resolve(spec Spec) (*Type, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if err := checkUnique(spec.SlotTypes); err != nil {
		return nil, fmt.Errorf("%w: %s slots: %v", ErrInvalidSpec, spec.Name, err)
	}
	if err := checkUnique(spec.GateTypes); err != nil {
		return nil, fmt.Errorf("%w: %s gates: %v", ErrInvalidSpec, spec.Name, err)
	}

	gates := make(map[string]GateParameters, len(spec.GateTypes))
	for _, gate := range spec.GateTypes {
		gates[gate] = DefaultGateParameters()
	}
	for gate, params := range spec.GateDefaults {
		if _, ok := gates[gate]; !ok {
			return nil, fmt.Errorf("%w: %s declares defaults for unknown gate %s", ErrInvalidSpec, spec.Name, gate)
		}
		if params.Function == "" {
			params.Function = GateFunctionIdentity
		}
		if params.Minimum > params.Maximum {
			return nil, fmt.Errorf("%w: %s gate %s minimum above maximum", ErrInvalidSpec, spec.Name, gate)
		}
		if _, err := r.GateFunction(params.Function); err != nil {
			return nil, err
		}
		gates[gate] = params
	}

	defaults := make(map[string]any, len(spec.ParameterDefaults))
	for k, v := range spec.ParameterDefaults {
		defaults[k] = v
	}
	values := make(map[string][]string, len(spec.ParameterValues))
	for k, v := range spec.ParameterValues {
		values[k] = append([]string(nil), v...)
	}

	return &Type{
		Name:              spec.Name,
		SlotTypes:         append([]string(nil), spec.SlotTypes...),
		GateTypes:         append([]string(nil), spec.GateTypes...),
		GateDefaults:      gates,
		Parameters:        append([]string(nil), spec.Parameters...),
		ParameterDefaults: defaults,
		ParameterValues:   values,
		Func:              spec.Func,
		Standard:          IsStandard(spec.Name),
	}, nil
}

func checkUnique(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return errors.New("empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate %q", name)
		}
		seen[name] = true
	}
	return nil
}

func indexOf(values []string, name string) int {
	for i, v := range values {
		if v == name {
			return i
		}
	}
	return -1
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
