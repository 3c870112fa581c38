// Package platform hosts node nets: it owns the type registry, the store,
// the world adapters and every loaded net, and runs nets in the background.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nodenet/internal/model"
	"nodenet/internal/nodefunc"
	"nodenet/internal/nodenet"
	"nodenet/internal/nodetype"
	"nodenet/internal/storage"
	"nodenet/internal/world"
)

const defaultStepInterval = 100 * time.Millisecond

var (
	ErrNodenetNotFound = errors.New("nodenet not found")
	ErrAlreadyRunning  = errors.New("nodenet already running")
	ErrNotInitialized  = errors.New("runtime is not initialized")
)

type EngineConfig struct {
	InitialNodes    int
	InitialElements int
	HistorySteps    int
	StepInterval    time.Duration
	// ModulatorBaselines lists the modulators that relax toward a baseline
	// by ModulatorDecayRate each step.
	ModulatorBaselines map[string]float64
	ModulatorDecayRate float64
}

type Config struct {
	Store storage.Store
	// Registry defaults to a registry holding the standard node types.
	Registry       *nodetype.Registry
	World          world.Adapter
	Logger         zerolog.Logger
	Engine         EngineConfig
	SupportModules []SupportModule
}

// SupportModule is a component started with the runtime and stopped on
// shutdown, such as a device poller feeding the world.
type SupportModule interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

type CreateOptions struct {
	UID   string
	Name  string
	Owner string
}

// NodenetSummary describes a stored or loaded net.
type NodenetSummary struct {
	storage.Summary
	Loaded    bool   `json:"loaded"`
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

// RunStatus combines a net's own status with whether a run loop owns it.
type RunStatus struct {
	nodenet.Status
	Running bool `json:"running"`
}

type Runtime struct {
	store    storage.Store
	registry *nodetype.Registry
	world    world.Adapter
	logger   zerolog.Logger
	engine   EngineConfig
	runner   *Runner

	mu             sync.RWMutex
	nets           map[string]*nodenet.Net
	supportModules []SupportModule
	started        bool
	lastStopReason StopReason

	config Config
}

func NewRuntime(cfg Config) *Runtime {
	if cfg.Engine.StepInterval <= 0 {
		cfg.Engine.StepInterval = defaultStepInterval
	}
	r := &Runtime{
		store:          cfg.Store,
		registry:       cfg.Registry,
		world:          cfg.World,
		logger:         cfg.Logger.With().Str("component", "runtime").Logger(),
		engine:         cfg.Engine,
		nets:           make(map[string]*nodenet.Net),
		lastStopReason: StopReasonNormal,
		config:         cfg,
	}
	r.runner = NewRunnerWithHooks(RunnerHooks{OnTaskStopped: r.onRunStopped})
	return r
}

func (r *Runtime) Init(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("store is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.store.Init(ctx); err != nil {
		return err
	}
	if r.registry == nil {
		reg := nodetype.NewRegistry()
		if err := nodefunc.RegisterStandard(reg); err != nil {
			return err
		}
		r.registry = reg
	}

	started := make([]SupportModule, 0, len(r.config.SupportModules))
	seen := make(map[string]bool, len(r.config.SupportModules))
	for i, module := range r.config.SupportModules {
		if module == nil {
			stopSupportModules(ctx, started)
			return fmt.Errorf("support module is nil at index %d", i)
		}
		name := module.Name()
		if name == "" {
			stopSupportModules(ctx, started)
			return fmt.Errorf("support module name is required at index %d", i)
		}
		if seen[name] {
			stopSupportModules(ctx, started)
			return fmt.Errorf("duplicate support module: %s", name)
		}
		if err := module.Start(ctx); err != nil {
			stopSupportModules(ctx, started)
			return fmt.Errorf("start support module %s: %w", name, err)
		}
		seen[name] = true
		started = append(started, module)
	}

	r.supportModules = started
	r.started = true
	r.logger.Debug().Int("support_modules", len(started)).Msg("runtime initialized")
	return nil
}

func (r *Runtime) Registry() *nodetype.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry
}

func (r *Runtime) netOptions() nodenet.Options {
	return nodenet.Options{
		Registry:        r.registry,
		World:           r.world,
		Logger:          r.config.Logger,
		InitialNodes:    r.engine.InitialNodes,
		InitialElements: r.engine.InitialElements,
		HistorySteps:    r.engine.HistorySteps,
		Operators:       r.stepOperators(),
	}
}

// stepOperators are the auxiliary operators every hosted net runs.
func (r *Runtime) stepOperators() []nodenet.StepOperator {
	ops := []nodenet.StepOperator{nodenet.GateDecay{}}
	if len(r.engine.ModulatorBaselines) > 0 {
		ops = append(ops, nodenet.ModulatorDecay{
			Baselines: r.engine.ModulatorBaselines,
			Rate:      r.engine.ModulatorDecayRate,
		})
	}
	return ops
}

// CreateNodenet builds an empty net, keeps it loaded and persists it.
func (r *Runtime) CreateNodenet(ctx context.Context, opts CreateOptions) (*nodenet.Net, error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if opts.UID != "" {
		if _, exists := r.nets[opts.UID]; exists {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: nodenet %s", nodenet.ErrDuplicateID, opts.UID)
		}
	}
	netOpts := r.netOptions()
	netOpts.UID = opts.UID
	netOpts.Name = opts.Name
	netOpts.Owner = opts.Owner
	net, err := nodenet.New(netOpts)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.nets[net.UID()] = net
	r.mu.Unlock()

	if err := r.store.SaveNodenet(ctx, net.Export()); err != nil {
		return nil, fmt.Errorf("save nodenet %s: %w", net.UID(), err)
	}
	r.logger.Info().Str("nodenet", net.UID()).Msg("nodenet created")
	return net, nil
}

// Nodenet returns a loaded net.
func (r *Runtime) Nodenet(uid string) (*nodenet.Net, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	net, ok := r.nets[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodenetNotFound, uid)
	}
	return net, nil
}

// LoadNodenet returns the loaded net, reading it from the store first when
// it is not in memory.
func (r *Runtime) LoadNodenet(ctx context.Context, uid string) (*nodenet.Net, error) {
	if net, err := r.Nodenet(uid); err == nil {
		return net, nil
	}
	if !r.Started() {
		return nil, ErrNotInitialized
	}
	record, ok, err := r.store.GetNodenet(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodenetNotFound, uid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if net, exists := r.nets[uid]; exists {
		return net, nil
	}
	net, err := nodenet.FromRecord(record, r.netOptions())
	if err != nil {
		return nil, fmt.Errorf("load nodenet %s: %w", uid, err)
	}
	r.nets[uid] = net
	r.logger.Info().Str("nodenet", uid).Int("step", net.CurrentStep()).Msg("nodenet loaded")
	return net, nil
}

// ImportNodenet loads a record, replacing a loaded net of the same uid
// unless it is running, and persists it.
func (r *Runtime) ImportNodenet(ctx context.Context, record model.NodenetRecord) (*nodenet.Net, error) {
	if !r.Started() {
		return nil, ErrNotInitialized
	}
	if r.runner.Running(record.UID) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, record.UID)
	}
	r.mu.RLock()
	opts := r.netOptions()
	r.mu.RUnlock()
	net, err := nodenet.FromRecord(record, opts)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveNodenet(ctx, net.Export()); err != nil {
		return nil, fmt.Errorf("save nodenet %s: %w", net.UID(), err)
	}
	r.mu.Lock()
	r.nets[net.UID()] = net
	r.mu.Unlock()
	return net, nil
}

// ExportNodenet returns the record of a loaded net, or the stored record.
func (r *Runtime) ExportNodenet(ctx context.Context, uid string) (model.NodenetRecord, error) {
	if net, err := r.Nodenet(uid); err == nil {
		return net.Export(), nil
	}
	record, ok, err := r.store.GetNodenet(ctx, uid)
	if err != nil {
		return model.NodenetRecord{}, err
	}
	if !ok {
		return model.NodenetRecord{}, fmt.Errorf("%w: %s", ErrNodenetNotFound, uid)
	}
	return record, nil
}

func (r *Runtime) SaveNodenet(ctx context.Context, uid string) error {
	net, err := r.Nodenet(uid)
	if err != nil {
		return err
	}
	return r.store.SaveNodenet(ctx, net.Export())
}

// UnloadNodenet stops and forgets a loaded net without touching the store.
func (r *Runtime) UnloadNodenet(uid string) error {
	if _, err := r.Nodenet(uid); err != nil {
		return err
	}
	r.runner.Stop(uid)
	r.mu.Lock()
	delete(r.nets, uid)
	r.mu.Unlock()
	return nil
}

func (r *Runtime) DeleteNodenet(ctx context.Context, uid string) error {
	r.runner.Stop(uid)
	r.mu.Lock()
	_, loaded := r.nets[uid]
	delete(r.nets, uid)
	r.mu.Unlock()

	if !loaded {
		if _, ok, err := r.store.GetNodenet(ctx, uid); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: %s", ErrNodenetNotFound, uid)
		}
	}
	if f, ok := r.world.(world.Forgetter); ok {
		f.Forget(uid)
	}
	return r.store.DeleteNodenet(ctx, uid)
}

// ListNodenets merges stored summaries with the live state of loaded nets.
func (r *Runtime) ListNodenets(ctx context.Context) ([]NodenetSummary, error) {
	stored, err := r.store.ListNodenets(ctx)
	if err != nil {
		return nil, err
	}
	byUID := make(map[string]NodenetSummary, len(stored))
	for _, s := range stored {
		byUID[s.UID] = NodenetSummary{Summary: s}
	}

	r.mu.RLock()
	for uid, net := range r.nets {
		nodes, links, _ := net.Counts()
		status := net.Status()
		byUID[uid] = NodenetSummary{
			Summary: storage.Summary{
				UID:   uid,
				Name:  net.Name(),
				Owner: net.Owner(),
				Step:  status.Step,
				Nodes: nodes,
				Links: links,
			},
			Loaded:    true,
			Running:   r.runner.Running(uid),
			LastError: status.LastError,
		}
	}
	r.mu.RUnlock()

	out := make([]NodenetSummary, 0, len(byUID))
	for _, s := range byUID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// StepNodenet runs steps synchronously and returns the resulting step
// count. Nets owned by a run loop cannot be stepped by hand.
func (r *Runtime) StepNodenet(ctx context.Context, uid string, steps int) (int, error) {
	net, err := r.LoadNodenet(ctx, uid)
	if err != nil {
		return 0, err
	}
	if r.runner.Running(uid) {
		return net.CurrentStep(), fmt.Errorf("%w: %s", ErrAlreadyRunning, uid)
	}
	for i := 0; i < steps; i++ {
		if err := net.Step(ctx); err != nil {
			return net.CurrentStep(), err
		}
	}
	return net.CurrentStep(), nil
}

// Start auto-steps a net every interval on its own goroutine. A failing
// step stops only this net; the cause is kept in its status.
func (r *Runtime) Start(ctx context.Context, uid string, interval time.Duration) error {
	net, err := r.LoadNodenet(ctx, uid)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = r.engine.StepInterval
	}
	if err := r.runner.Start(uid, runLoop(net, interval)); err != nil {
		return err
	}
	r.logger.Info().Str("nodenet", uid).Dur("interval", interval).Msg("run loop started")
	return nil
}

func (r *Runtime) Stop(uid string) error {
	if _, err := r.Nodenet(uid); err != nil {
		return err
	}
	r.runner.Stop(uid)
	return nil
}

func (r *Runtime) Status(uid string) (RunStatus, error) {
	net, err := r.Nodenet(uid)
	if err != nil {
		return RunStatus{}, err
	}
	return RunStatus{Status: net.Status(), Running: r.runner.Running(uid)}, nil
}

func runLoop(net *nodenet.Net, interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		net.SetActive(true)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				net.SetActive(false)
				return nil
			case <-ticker.C:
				if err := net.Step(ctx); err != nil {
					if ctx.Err() != nil {
						net.SetActive(false)
						return nil
					}
					return err
				}
			}
		}
	}
}

func (r *Runtime) onRunStopped(uid string, err error) {
	if err != nil {
		r.logger.Error().Err(err).Str("nodenet", uid).Msg("run loop stopped")
		return
	}
	r.logger.Info().Str("nodenet", uid).Msg("run loop finished")
}

// ReloadNodeTypes registers specs and rebinds every loaded net to the
// registry's current definitions. It returns the recreated node ids per
// net.
func (r *Runtime) ReloadNodeTypes(specs ...nodetype.Spec) (map[string][]string, error) {
	registry := r.Registry()
	if registry == nil {
		return nil, ErrNotInitialized
	}
	if len(specs) > 0 {
		if _, err := registry.Reload(specs...); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	uids := make([]string, 0, len(r.nets))
	for uid := range r.nets {
		uids = append(uids, uid)
	}
	r.mu.RUnlock()
	sort.Strings(uids)

	out := make(map[string][]string, len(uids))
	for _, uid := range uids {
		net, err := r.Nodenet(uid)
		if err != nil {
			continue
		}
		recreated, err := net.ReloadNodeTypes()
		if err != nil {
			return out, fmt.Errorf("reload nodenet %s: %w", uid, err)
		}
		if len(recreated) > 0 {
			out[uid] = recreated
		}
	}
	return out, nil
}

// RunStatuses lists every run loop, including loops that ended with an
// error.
func (r *Runtime) RunStatuses() []TaskStatus {
	return r.runner.Children()
}

func (r *Runtime) Started() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

func (r *Runtime) LastStopReason() StopReason {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastStopReason
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	return r.StopWithReason(ctx, StopReasonShutdown)
}

// StopWithReason stops every run loop, persists the loaded nets and stops
// the support modules. The store is closed on shutdown.
func (r *Runtime) StopWithReason(ctx context.Context, reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if !isValidStopReason(reason) {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}
	r.runner.StopAll()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	var errs []error
	for _, uid := range sortedNetIDs(r.nets) {
		if err := r.store.SaveNodenet(ctx, r.nets[uid].Export()); err != nil {
			errs = append(errs, fmt.Errorf("save nodenet %s: %w", uid, err))
		}
	}
	stopSupportModules(ctx, r.supportModules)
	if reason == StopReasonShutdown {
		if err := storage.CloseIfSupported(r.store); err != nil {
			errs = append(errs, err)
		}
	}

	r.started = false
	r.lastStopReason = reason
	r.supportModules = nil
	r.nets = make(map[string]*nodenet.Net)
	return errors.Join(errs...)
}

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}

func stopSupportModules(ctx context.Context, modules []SupportModule) {
	for i := len(modules) - 1; i >= 0; i-- {
		_ = modules[i].Stop(ctx)
	}
}

func sortedNetIDs(nets map[string]*nodenet.Net) []string {
	ids := make([]string, 0, len(nets))
	for id := range nets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
