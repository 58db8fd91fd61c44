package activate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/internal/credstore"
	"github.com/temoto/fridgesim/internal/state"
	"github.com/temoto/fridgesim/internal/transport"
	"github.com/temoto/fridgesim/internal/wire"
	"github.com/temoto/fridgesim/log2"
)

const testCIK = "0123456789abcdef0123456789abcdef01234567"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Device.ProductID = "pid"
	cfg.Device.DeviceID = "7"
	cfg.Device.Prompt = false
	return cfg
}

func resp(code int, reason, body string) []byte {
	return wire.FormatResponse(code, reason, nil, []byte(body))
}

// stdout is package state, cases run sequentially
func TestActivate(t *testing.T) {
	type Case struct {
		name   string
		stored string
		reply  []byte
		check  func(t testing.TB, err error, out string, store *credstore.Memory)
	}
	cases := []Case{
		{"new", "", resp(200, "OK", testCIK), func(t testing.TB, err error, out string, store *credstore.Memory) {
			require.NoError(t, err)
			assert.Contains(t, out, "activated product=pid device=7 cik="+testCIK)
			cik, ok, err := store.Load("pid", "7")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, testCIK, cik)
		}},
		{"conflict/stored", testCIK, resp(409, "Conflict", ""), func(t testing.TB, err error, out string, store *credstore.Memory) {
			require.NoError(t, err)
			assert.Contains(t, out, "stored credential is kept")
		}},
		{"conflict/nothing-stored", "", resp(409, "Conflict", ""), func(t testing.TB, err error, out string, store *credstore.Memory) {
			require.Error(t, err)
			assert.Contains(t, err.Error(), "activation failed")
			assert.Equal(t, "", out)
			_, ok, _ := store.Load("pid", "7")
			assert.False(t, ok)
		}},
		{"unknown-identity", "", resp(404, "Not Found", ""), func(t testing.TB, err error, out string, store *credstore.Memory) {
			require.Error(t, err)
			assert.Contains(t, err.Error(), "activation failed")
		}},
		{"refused", "", nil, func(t testing.TB, err error, out string, store *credstore.Memory) {
			require.Error(t, err)
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			stdout = &buf
			ctx, g := state.NewContext(log2.NewTest(t, log2.LDebug))
			mock := transport.NewMock(t, c.reply)
			store := credstore.NewMemory()
			if c.stored != "" {
				require.NoError(t, store.Save("pid", "7", c.stored))
			}
			g.Transport = mock
			g.Store = store
			err := Main(ctx, testConfig(), nil)
			c.check(t, err, buf.String(), store)

			sent := mock.Sent()
			require.Len(t, sent, 1)
			assert.Contains(t, string(sent[0]), "POST /provision/activate HTTP/1.1")
			assert.Contains(t, string(sent[0]), "vendor=pid&model=pid&sn=7")
		})
	}
}

func TestActivateInvalidConfig(t *testing.T) {
	ctx, g := state.NewContext(log2.NewTest(t, log2.LDebug))
	mock := transport.NewMock(t)
	g.Transport = mock
	g.Store = credstore.NewMemory()
	cfg := testConfig()
	cfg.Device.ProductID = ""
	err := Main(ctx, cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product_id")
	assert.Len(t, mock.Sent(), 0)
}
