package world

// Adapter is the narrow world contract the engine consumes. Every method
// must return without blocking on device or network I/O; an absent or slow
// source reports the last known value or ok=false.
type Adapter interface {
	Datasource(agentID, name string) (float64, bool)
	AddToDatatarget(agentID, name string, value float64) bool
	DatatargetFeedback(agentID, name string) (float64, bool)
}

// DatasourceLister is an optional capability used by tools that offer
// datasource names for Sensor configuration.
type DatasourceLister interface {
	Datasources() []string
}

// DatatargetLister is the Actor-side counterpart of DatasourceLister.
type DatatargetLister interface {
	Datatargets() []string
}

// Snapshotter is an optional capability: the engine calls Snapshot once
// per step before propagation so every Sensor in the step reads the same
// world state.
type Snapshotter interface {
	Snapshot(agentID string)
}

// Committer is an optional capability: the engine calls Commit once per
// step after calculation to hand accumulated datatarget values to the
// world.
type Committer interface {
	Commit(agentID string)
}

// Forgetter is an optional capability: the host calls Forget when a net is
// deleted so the world can drop the state it kept for it.
type Forgetter interface {
	Forget(agentID string)
}
