package nodenet

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodenet/internal/config"
	"nodenet/internal/model"
	engine "nodenet/internal/nodenet"
	"nodenet/internal/nodetype"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	engineCfg := config.Default().Engine
	engineCfg.StepInterval = time.Millisecond
	client, err := New(Options{
		StoreKind:   "memory",
		Engine:      &engineCfg,
		Logger:      zerolog.Nop(),
		Datasources: []string{DemoDatasource},
		Datatargets: []string{DemoDatatarget},
	})
	require.NoError(t, err)
	require.NoError(t, client.Init(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientDemoDrivesTheWorld(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	summary, err := client.CreateDemo(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Nodes)
	assert.Equal(t, 7, summary.Links)

	client.SetDatasource(DemoDatasource, 0.8)
	summary, err = client.Step(ctx, StepRequest{UID: "demo", Steps: 3, Save: true})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Step)
	assert.InDelta(t, 0.4, client.Datatarget(DemoDatatarget), 1e-9)

	data, err := client.NodespaceData(ctx, "demo", "", 0)
	require.NoError(t, err)
	assert.Len(t, data.Nodes, 3)
	assert.Len(t, data.Monitors, 1)
	for _, m := range data.Monitors {
		assert.Len(t, m.Values, 3)
	}

	list, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Step)
}

func TestClientExportImportJSON(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	_, err := client.CreateDemo(ctx, "demo")
	require.NoError(t, err)
	_, err = client.Step(ctx, StepRequest{UID: "demo", Steps: 2})
	require.NoError(t, err)

	data, err := client.ExportJSON(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, "demo"))
	_, err = client.Export(ctx, "demo")
	require.ErrorIs(t, err, ErrNodenetNotFound)

	summary, err := client.ImportJSON(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "demo", summary.UID)
	assert.Equal(t, 2, summary.Step)
	assert.Equal(t, 6, summary.Nodes)

	_, err = client.ImportJSON(ctx, []byte("not json"))
	require.ErrorIs(t, err, model.ErrMalformedSnapshot)
}

func TestClientRunsInBackground(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	_, err := client.CreateDemo(ctx, "demo")
	require.NoError(t, err)

	require.NoError(t, client.Start(ctx, "demo", 0))
	require.ErrorIs(t, client.Start(ctx, "demo", 0), ErrAlreadyRunning)
	require.Eventually(t, func() bool {
		status, err := client.Status("demo")
		return err == nil && status.Step >= 3
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, client.Stop("demo"))

	status, err := client.Status("demo")
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Empty(t, status.LastError)
}

func TestClientRegistersNodeTypes(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	assert.Contains(t, client.NodeTypes(), nodetype.TypeScript)

	_, err := client.RegisterNodeTypes(nodetype.Spec{
		Name:      "Doubler",
		SlotTypes: []string{"gen"},
		GateTypes: []string{"gen"},
		Func: func(_ nodetype.API, node nodetype.Node, sheaf string, _ nodetype.Parameters) error {
			v, err := node.SlotActivation("gen", sheaf)
			if err != nil {
				return err
			}
			return node.GateFunction("gen", 2*v, sheaf)
		},
	})
	require.NoError(t, err)
	assert.Contains(t, client.NodeTypes(), "Doubler")

	_, err = client.Create(ctx, CreateRequest{UID: "custom"})
	require.NoError(t, err)
	net, err := client.Nodenet(ctx, "custom")
	require.NoError(t, err)
	_, err = net.CreateNode("Doubler", model.RootNodespace, engine.NodeOptions{Name: "double"})
	require.NoError(t, err)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	_, err := New(Options{StoreKind: "cassandra"})
	require.Error(t, err)
}

func TestFromConfigRequiresConfig(t *testing.T) {
	_, err := FromConfig(nil, zerolog.Nop())
	require.Error(t, err)

	client, err := FromConfig(config.Default(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, client.Init(context.Background()))
	require.NoError(t, client.Close())
}
