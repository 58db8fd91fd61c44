package subcmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/log2"
)

func TestParse(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *config.Config, []string) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "read", Main: noop}}

	m, err := Parse("read", mods)
	require.NoError(t, err)
	assert.Equal(t, "read", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("fly", mods)
	assert.EqualError(t, err, "unknown command='fly'")

	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{Main: noop}}) })
}

func TestAskIdentityDisabled(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Device.Prompt = false
	AskIdentity(log2.NewTest(t, log2.LDebug), cfg)
	assert.Equal(t, config.DefaultDeviceID, cfg.Device.DeviceID)
}
