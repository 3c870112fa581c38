// Package nodenet is the public entry point for hosting node nets: create,
// edit, step, run, persist and exchange them.
package nodenet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nodenet/internal/config"
	"nodenet/internal/model"
	engine "nodenet/internal/nodenet"
	"nodenet/internal/nodetype"
	"nodenet/internal/platform"
	"nodenet/internal/storage"
	"nodenet/internal/world"
)

const defaultDBPath = "nodenet.db"

// Re-exported errors for callers outside the module.
var (
	ErrNodenetNotFound = platform.ErrNodenetNotFound
	ErrAlreadyRunning  = platform.ErrAlreadyRunning
	ErrNodeFunction    = engine.ErrNodeFunction
	ErrVersionMismatch = model.ErrVersionMismatch
)

type Options struct {
	StoreKind string
	DBPath    string
	// Engine defaults to config.Default().Engine.
	Engine      *config.EngineConfig
	Logger      zerolog.Logger
	Datasources []string
	Datatargets []string
}

type Client struct {
	store   storage.Store
	world   *world.ScalarWorld
	runtime *platform.Runtime
}

type CreateRequest struct {
	UID   string
	Name  string
	Owner string
}

type StepRequest struct {
	UID   string
	Steps int
	// Save persists the net after stepping.
	Save bool
}

type StepSummary struct {
	UID   string
	Step  int
	Nodes int
	Links int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	engineCfg := config.Default().Engine
	if opts.Engine != nil {
		engineCfg = *opts.Engine
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	w := world.NewScalarWorld(opts.Datasources, opts.Datatargets)
	rt := platform.NewRuntime(platform.Config{
		Store:  store,
		World:  w,
		Logger: opts.Logger,
		Engine: platform.EngineConfig{
			InitialNodes:    engineCfg.InitialNodes,
			InitialElements: engineCfg.InitialElements,
			HistorySteps:    engineCfg.HistorySteps,
			StepInterval:    engineCfg.StepInterval,

			ModulatorBaselines: engineCfg.ModulatorBaselines,
			ModulatorDecayRate: engineCfg.ModulatorDecayRate,
		},
	})
	return &Client{store: store, world: w, runtime: rt}, nil
}

// FromConfig builds a client from a loaded configuration file.
func FromConfig(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	engineCfg := cfg.Engine
	return New(Options{
		StoreKind:   cfg.Store.Kind,
		DBPath:      cfg.Store.SQLitePath,
		Engine:      &engineCfg,
		Logger:      logger,
		Datasources: []string{DemoDatasource},
		Datatargets: []string{DemoDatatarget},
	})
}

func (c *Client) Init(ctx context.Context) error {
	return c.runtime.Init(ctx)
}

// Close stops every run loop, saves the loaded nets and closes the store.
func (c *Client) Close() error {
	if !c.runtime.Started() {
		return storage.CloseIfSupported(c.store)
	}
	return c.runtime.Shutdown(context.Background())
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (StepSummary, error) {
	net, err := c.runtime.CreateNodenet(ctx, platform.CreateOptions{UID: req.UID, Name: req.Name, Owner: req.Owner})
	if err != nil {
		return StepSummary{}, err
	}
	return summarize(net), nil
}

// Nodenet loads a net for editing.
func (c *Client) Nodenet(ctx context.Context, uid string) (*engine.Net, error) {
	return c.runtime.LoadNodenet(ctx, uid)
}

func (c *Client) List(ctx context.Context) ([]platform.NodenetSummary, error) {
	return c.runtime.ListNodenets(ctx)
}

func (c *Client) Step(ctx context.Context, req StepRequest) (StepSummary, error) {
	if req.Steps <= 0 {
		req.Steps = 1
	}
	if _, err := c.runtime.StepNodenet(ctx, req.UID, req.Steps); err != nil {
		return StepSummary{}, err
	}
	net, err := c.runtime.Nodenet(req.UID)
	if err != nil {
		return StepSummary{}, err
	}
	if req.Save {
		if err := c.runtime.SaveNodenet(ctx, req.UID); err != nil {
			return StepSummary{}, err
		}
	}
	return summarize(net), nil
}

func (c *Client) Save(ctx context.Context, uid string) error {
	return c.runtime.SaveNodenet(ctx, uid)
}

// Start runs a net in the background; interval 0 uses the configured step
// interval.
func (c *Client) Start(ctx context.Context, uid string, interval time.Duration) error {
	return c.runtime.Start(ctx, uid, interval)
}

func (c *Client) Stop(uid string) error {
	return c.runtime.Stop(uid)
}

func (c *Client) Status(uid string) (platform.RunStatus, error) {
	return c.runtime.Status(uid)
}

func (c *Client) Delete(ctx context.Context, uid string) error {
	return c.runtime.DeleteNodenet(ctx, uid)
}

func (c *Client) Export(ctx context.Context, uid string) (model.NodenetRecord, error) {
	return c.runtime.ExportNodenet(ctx, uid)
}

// ExportJSON returns the indented snapshot of a net.
func (c *Client) ExportJSON(ctx context.Context, uid string) ([]byte, error) {
	record, err := c.Export(ctx, uid)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(record, "", "  ")
}

// ImportJSON loads a snapshot produced by ExportJSON and persists it.
func (c *Client) ImportJSON(ctx context.Context, data []byte) (StepSummary, error) {
	var record model.NodenetRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return StepSummary{}, fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	net, err := c.runtime.ImportNodenet(ctx, record)
	if err != nil {
		return StepSummary{}, err
	}
	return summarize(net), nil
}

// NodespaceData returns a bounded view of one nodespace.
func (c *Client) NodespaceData(ctx context.Context, uid, nodespace string, maxNodes int) (engine.NodespaceData, error) {
	net, err := c.runtime.LoadNodenet(ctx, uid)
	if err != nil {
		return engine.NodespaceData{}, err
	}
	if nodespace == "" {
		nodespace = model.RootNodespace
	}
	return net.NodespaceData(nodespace, maxNodes)
}

// NodeTypes lists the registered node type names.
func (c *Client) NodeTypes() []string {
	reg := c.runtime.Registry()
	if reg == nil {
		return nil
	}
	return reg.List()
}

// RegisterNodeTypes adds or replaces node types and rebinds loaded nets.
func (c *Client) RegisterNodeTypes(specs ...nodetype.Spec) (map[string][]string, error) {
	return c.runtime.ReloadNodeTypes(specs...)
}

// SetDatasource updates a world datasource; nets observe it on their next
// step.
func (c *Client) SetDatasource(name string, value float64) {
	c.world.Set(name, value)
}

// Datatarget returns the last committed value of a world datatarget.
func (c *Client) Datatarget(name string) float64 {
	return c.world.Target(name)
}

func summarize(net *engine.Net) StepSummary {
	nodes, links, _ := net.Counts()
	return StepSummary{UID: net.UID(), Step: net.CurrentStep(), Nodes: nodes, Links: links}
}
