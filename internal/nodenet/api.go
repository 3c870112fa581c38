package nodenet

import (
	"github.com/rs/zerolog"

	"nodenet/internal/nodetype"
)

// netAPI is the net surface node functions and step operators see. It runs
// under the net lock held by the step.
type netAPI struct {
	net *Net
}

var _ nodetype.API = netAPI{}

func (a netAPI) UID() string             { return a.net.uid }
func (a netAPI) Step() int               { return a.net.stepCount }
func (a netAPI) Logger() *zerolog.Logger { return &a.net.logger }

func (a netAPI) Datasource(name string) (float64, bool) {
	if a.net.world == nil {
		return 0, false
	}
	return a.net.world.Datasource(a.net.uid, name)
}

func (a netAPI) AddToDatatarget(name string, value float64) bool {
	if a.net.world == nil {
		return false
	}
	return a.net.world.AddToDatatarget(a.net.uid, name, value)
}

func (a netAPI) DatatargetFeedback(name string) (float64, bool) {
	if a.net.world == nil {
		return 0, false
	}
	return a.net.world.DatatargetFeedback(a.net.uid, name)
}

func (a netAPI) Modulator(name string) (float64, bool) {
	v, ok := a.net.modulators[name]
	return v, ok
}

func (a netAPI) SetModulator(name string, value float64) {
	a.net.modulators[name] = value
}

func (a netAPI) ChangeModulator(name string, diff float64) {
	a.net.modulators[name] += diff
}

func (a netAPI) IsLocked(name string) bool {
	_, ok := a.net.locks[name]
	return ok
}

func (a netAPI) Lock(name, key string, timeout int) error {
	return a.net.lock(name, key, timeout)
}

// Unlock takes effect once the current step completes.
func (a netAPI) Unlock(name string) {
	a.net.pendingUnlocks = append(a.net.pendingUnlocks, name)
}
