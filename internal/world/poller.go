package world

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Device is an input device read by a Poller.
type Device interface {
	Name() string
	Read(ctx context.Context) (float64, error)
}

// DeviceFunc adapts a plain function to Device.
type DeviceFunc struct {
	DeviceName string
	ReadFunc   func(ctx context.Context) (float64, error)
}

func (d DeviceFunc) Name() string { return d.DeviceName }

func (d DeviceFunc) Read(ctx context.Context) (float64, error) { return d.ReadFunc(ctx) }

// Poller reads a device on its own goroutine and republishes the last
// successful value. Readers never wait for the device.
type Poller struct {
	device   Device
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	last   float64
	seen   bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(device Device, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Poller{
		device:   device,
		interval: interval,
		logger:   logger.With().Str("device", device.Name()).Logger(),
	}
}

// Name is the name of the polled device.
func (p *Poller) Name() string { return p.device.Name() }

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("poller already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Last returns the most recent value read; ok is false before the first
// successful read.
func (p *Poller) Last() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.seen
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	value, err := p.device.Read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debug().Err(err).Msg("device read failed")
		}
		return
	}
	p.mu.Lock()
	p.last = value
	p.seen = true
	p.mu.Unlock()
}

// DeviceWorld composes a ScalarWorld with polled input devices. Each
// device publishes into the datasource of the same name at snapshot time.
type DeviceWorld struct {
	*ScalarWorld

	mu      sync.RWMutex
	pollers map[string]*Poller
}

func NewDeviceWorld(base *ScalarWorld) *DeviceWorld {
	return &DeviceWorld{ScalarWorld: base, pollers: make(map[string]*Poller)}
}

// Attach registers a poller as the source of its device's datasource.
func (w *DeviceWorld) Attach(p *Poller) {
	w.mu.Lock()
	w.pollers[p.device.Name()] = p
	w.mu.Unlock()
	w.ScalarWorld.mu.Lock()
	if _, ok := w.ScalarWorld.sources[p.device.Name()]; !ok {
		w.ScalarWorld.sources[p.device.Name()] = 0
	}
	w.ScalarWorld.mu.Unlock()
}

func (w *DeviceWorld) Snapshot(agentID string) {
	w.mu.RLock()
	for name, p := range w.pollers {
		if v, ok := p.Last(); ok {
			w.ScalarWorld.Set(name, v)
		}
	}
	w.mu.RUnlock()
	w.ScalarWorld.Snapshot(agentID)
}

// StopAll stops every attached poller.
func (w *DeviceWorld) StopAll() {
	w.mu.RLock()
	pollers := make([]*Poller, 0, len(w.pollers))
	for _, p := range w.pollers {
		pollers = append(pollers, p)
	}
	w.mu.RUnlock()
	for _, p := range pollers {
		p.Stop()
	}
}
