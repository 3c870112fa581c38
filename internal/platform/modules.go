package platform

import (
	"context"

	"nodenet/internal/world"
)

// PollerModule runs a device poller for the lifetime of the runtime.
type PollerModule struct {
	Poller *world.Poller
}

func (m PollerModule) Name() string {
	return "poller:" + m.Poller.Name()
}

// Start detaches the poller from ctx so it outlives the Init call.
func (m PollerModule) Start(ctx context.Context) error {
	return m.Poller.Start(context.WithoutCancel(ctx))
}

func (m PollerModule) Stop(context.Context) error {
	m.Poller.Stop()
	return nil
}
