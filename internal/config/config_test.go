package config

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/fridgesim/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, "1", c.Device.DeviceID)
			assert.Equal(t, "m2.exosite.com", c.Device.BaseHost)
			assert.Equal(t, 443, c.Device.Port)
			assert.True(t, c.Device.Prompt)
			assert.True(t, c.Loop.LongPoll)
			assert.Equal(t, "strict", c.Loop.ClampPolicy)
			assert.Equal(t, "extremofile", c.Persist.Backend)
			assert.Equal(t, 30*time.Second, c.NetworkTimeout())
			assert.Equal(t, 500*time.Millisecond, c.Tick())
			assert.Equal(t, 2*time.Second, c.LongPollTimeout())
			assert.Equal(t, 10*time.Second, c.ActivationRetry())
		}, ""},

		{"device", `
device {
	product_id = "qvebworumfyo80k9"
	device_id = "42"
	base_host = "m2.example.com"
	port = 8443
	prompt = false
}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "qvebworumfyo80k9", c.Device.ProductID)
				assert.Equal(t, "42", c.Device.DeviceID)
				assert.Equal(t, "m2.example.com", c.Device.BaseHost)
				assert.Equal(t, 8443, c.Device.Port)
				assert.False(t, c.Device.Prompt)
			}, ""},

		{"loop-network", `
network { timeout_sec = 5 read_limit = 4096 tls_insecure = true log_wire = true }
loop { tick_ms = 100 long_poll = false activation_retry_sec = 3 clamp_policy = "legacy" }
metrics { listen = "127.0.0.1:9100" }
log_debug = true`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 5*time.Second, c.NetworkTimeout())
				assert.Equal(t, 4096, c.Network.ReadLimit)
				assert.True(t, c.Network.TLSInsecure)
				assert.True(t, c.Network.LogWire)
				assert.Equal(t, 100*time.Millisecond, c.Tick())
				assert.False(t, c.Loop.LongPoll)
				assert.Equal(t, 3*time.Second, c.ActivationRetry())
				assert.Equal(t, "legacy", c.Loop.ClampPolicy)
				assert.Equal(t, "127.0.0.1:9100", c.Metrics.Listen)
				assert.True(t, c.LogDebug)
			}, ""},

		{"include-normalize", `
device { port = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "device-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "7", c.Device.DeviceID)
			}, ""},

		{"include-overwrites", `
device { device_id = "1" }
include "device-7" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "7", c.Device.DeviceID)
			}, ""},

		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"device-7":     `device { device_id = "7" }`,
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, mkCheck(c))
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	type Case struct {
		name  string
		env   map[string]string
		check func(testing.TB, *Config)
	}
	cases := []Case{
		{"none", nil, func(t testing.TB, c *Config) {
			assert.Equal(t, "1", c.Device.DeviceID)
			assert.True(t, c.Device.Prompt)
		}},
		{"all", map[string]string{
			EnvDeviceID:     "99",
			EnvHost:         "m3.example.com",
			EnvProductID:    " envpid ",
			EnvPersistRoot:  "/var/lib/fridgesim",
			EnvShouldPrompt: "0",
		}, func(t testing.TB, c *Config) {
			assert.Equal(t, "99", c.Device.DeviceID)
			assert.Equal(t, "m3.example.com", c.Device.BaseHost)
			assert.Equal(t, "envpid", c.Device.ProductID)
			assert.Equal(t, "/var/lib/fridgesim", c.Persist.Root)
			assert.False(t, c.Device.Prompt)
		}},
		{"prompt-1", map[string]string{EnvShouldPrompt: "1"}, func(t testing.TB, c *Config) {
			assert.True(t, c.Device.Prompt)
		}},
		{"prompt-garbage", map[string]string{EnvShouldPrompt: "yes please"}, func(t testing.TB, c *Config) {
			assert.False(t, c.Device.Prompt)
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			require.NoError(t, cfg.ApplyEnv(func(key string) string { return c.env[key] }))
			c.check(t, cfg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	noenv := func(string) string { return "" }

	t.Run("product-id-file", func(t *testing.T) {
		t.Parallel()
		log := log2.NewTest(t, log2.LDebug)
		fs := NewMockFullReader(map[string]string{
			"main":        `device { device_id = "5" }`,
			"prod_id.txt": "qvebworumfyo80k9\n",
		})
		c, err := Load(log, fs, noenv, "main")
		require.NoError(t, err)
		assert.Equal(t, "qvebworumfyo80k9", c.Device.ProductID)
		assert.Equal(t, "5", c.Device.DeviceID)
	})

	t.Run("env-wins-over-file", func(t *testing.T) {
		t.Parallel()
		log := log2.NewTest(t, log2.LDebug)
		fs := NewMockFullReader(map[string]string{
			"main":        `device { product_id = "filepid" }`,
			"prod_id.txt": "txtpid",
		})
		c, err := Load(log, fs, func(k string) string {
			if k == EnvProductID {
				return "envpid"
			}
			return ""
		}, "main")
		require.NoError(t, err)
		assert.Equal(t, "envpid", c.Device.ProductID)
	})

	t.Run("product-id-missing", func(t *testing.T) {
		t.Parallel()
		log := log2.NewTest(t, log2.LDebug)
		fs := NewMockFullReader(map[string]string{"main": ""})
		_, err := Load(log, fs, noenv, "main")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "device.product_id=empty")
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()
	type Case struct {
		name      string
		mod       func(*Config)
		expectErr string
	}
	cases := []Case{
		{"ok", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Device.Port = 70000 }, "device.port=70000"},
		{"clamp", func(c *Config) { c.Loop.ClampPolicy = "loose" }, `clamp_policy="loose"`},
		{"backend", func(c *Config) { c.Persist.Backend = "redis" }, `persist.backend="redis"`},
		{"read-limit", func(c *Config) { c.Network.ReadLimit = -1 }, "network.read_limit=-1"},
		{"device-id", func(c *Config) { c.Device.DeviceID = "" }, "device.device_id=empty"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.Device.ProductID = "pid"
			c.mod(cfg)
			err := cfg.Validate()
			if c.expectErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../fridgesim.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../../fridgesim.hcl")
	assert.Equal(t, "m2.exosite.com", c.Device.BaseHost)
}
