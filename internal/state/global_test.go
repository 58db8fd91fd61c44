package state

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/internal/credstore"
	"github.com/temoto/fridgesim/internal/transport"
	"github.com/temoto/fridgesim/internal/wire"
	"github.com/temoto/fridgesim/log2"
)

func newTestContext(t testing.TB, confString string) (context.Context, *Global, *transport.Mock) {
	log := log2.NewTest(t, log2.LDebug)
	fs := config.NewMockFullReader(map[string]string{"test-inline": confString})
	cfg, err := config.Load(log, fs, func(string) string { return "" }, "test-inline")
	require.NoError(t, err)

	ctx, g := NewContext(log)
	mock := transport.NewMock(t)
	g.Transport = mock
	g.Store = credstore.NewMemory()
	require.NoError(t, g.Init(ctx, cfg))
	return ctx, g, mock
}

func TestInit(t *testing.T) {
	t.Parallel()
	ctx, g, _ := newTestContext(t, `device { product_id = "pid" device_id = "3" } loop { clamp_policy = "legacy" }`)
	assert.Equal(t, g, GetGlobal(ctx))
	assert.Equal(t, "pid.m2.exosite.com", g.Session.Host())
	assert.Equal(t, "pid.m2.exosite.com:443", g.Session.Addr())
	loop, err := g.NewLoop()
	require.NoError(t, err)
	assert.NotNil(t, loop)
	assert.NoError(t, g.ServeMetrics(ctx), "metrics listen not configured")

	g.Log.Errorf("counted")
	assert.Equal(t, float64(1), testutil.ToFloat64(g.Stat.Errors))
}

func TestInitBuildsTransport(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	cfg := config.Default()
	cfg.Device.ProductID = "pid"
	cfg.Persist.Backend = credstore.BackendMemory
	ctx, g := NewContext(log)
	require.NoError(t, g.Init(ctx, cfg))
	_, ok := g.Transport.(*transport.TLS)
	assert.True(t, ok)
	_, ok = g.Store.(*credstore.Memory)
	assert.True(t, ok)
}

func TestInitInvalid(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	cfg := config.Default()
	ctx, g := NewContext(log)
	err := g.Init(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product_id")
}

func TestBootstrapAndTick(t *testing.T) {
	t.Parallel()
	ctx, g, mock := newTestContext(t, `device { product_id = "pid" }`)
	mock.Push(
		wire.FormatResponse(200, "OK", nil, []byte("cik1")),
		wire.FormatResponse(200, "OK", nil, []byte("underPressure=5")),
		wire.FormatResponse(304, "Not Modified", nil, nil),
		wire.FormatResponse(204, "No Content", nil, nil),
	)
	require.True(t, g.Session.Bootstrap(ctx).OK())
	loop, err := g.NewLoop()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), loop.Tick(ctx))
	assert.Equal(t, "5", loop.State().UnderPressure)
	assert.Len(t, mock.Sent(), 4)

	stored, ok, err := g.Store.Load("pid", "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cik1", stored)
}

func TestStopWait(t *testing.T) {
	t.Parallel()
	_, g := NewContext(log2.NewTest(t, log2.LDebug))
	assert.True(t, g.StopWait(time.Second))
	assert.False(t, g.Alive.IsRunning())
}

func TestError(t *testing.T) {
	t.Parallel()
	_, g, _ := newTestContext(t, `device { product_id = "pid" device_id = "1" }`)
	g.Error(nil, "ignored")
	assert.Equal(t, float64(0), testutil.ToFloat64(g.Stat.Errors))
	g.Error(errors.New("boom"), "command=%s", "read")
	g.Error(errors.New("plain"))
	assert.Equal(t, float64(2), testutil.ToFloat64(g.Stat.Errors))
}
