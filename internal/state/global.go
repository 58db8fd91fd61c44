package state

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/internal/credstore"
	"github.com/temoto/fridgesim/internal/session"
	"github.com/temoto/fridgesim/internal/stat"
	"github.com/temoto/fridgesim/internal/telemetry"
	"github.com/temoto/fridgesim/internal/transport"
	"github.com/temoto/fridgesim/internal/wire"
	"github.com/temoto/fridgesim/log2"
)

// Global holds process wide simulator components.
// Store and Transport set before Init are kept, tests use it to inject mocks.
type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *config.Config
	Log          *log2.Log
	Stat         *stat.Stat
	Store        credstore.Store
	Transport    transport.Transporter
	Session      *session.Session

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Stat:  stat.New(),
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *config.Config) error {
	g.Config = cfg
	if g.BuildVersion != "" {
		g.Log.Infof("build version=%s", g.BuildVersion)
	}
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	if g.Stat == nil {
		g.Stat = stat.New()
	}
	g.Log.SetErrorFunc(g.Stat.Error)
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}

	if g.Store == nil {
		g.Log.Debugf("config: persist.root=%s backend=%s", cfg.Persist.Root, cfg.Persist.Backend)
		store, err := credstore.New(cfg.Persist.Backend, cfg.Persist.Root, g.Log)
		if err != nil {
			return errors.Annotate(err, "credstore init")
		}
		g.Store = store
	}

	if g.Transport == nil {
		tlsConfig, err := transport.LoadTLSConfig(cfg.Network.TLSCAFile, cfg.Network.TLSInsecure)
		if err != nil {
			return errors.Annotate(err, "transport init")
		}
		if cfg.Network.TLSInsecure {
			g.Log.Errorf("config: network.tls_insecure=true server certificate is not verified")
		}
		g.Transport = transport.NewTLS(transport.Options{
			NetworkTimeout: cfg.NetworkTimeout(),
			ReadLimit:      cfg.Network.ReadLimit,
			TLS:            tlsConfig,
			Complete:       wire.Complete,
			Log:            g.Log,
			LogWire:        cfg.Network.LogWire,
			BytesSent:      g.Stat.SentAdder(),
			BytesRecv:      g.Stat.RecvAdder(),
		})
	}

	s, err := session.New(session.Options{
		Identity: session.Identity{
			ProductID: cfg.Device.ProductID,
			DeviceID:  cfg.Device.DeviceID,
		},
		BaseHost:        cfg.Device.BaseHost,
		Port:            cfg.Device.Port,
		LongPollTimeout: cfg.LongPollTimeout(),
		Transport:       g.Transport,
		Store:           g.Store,
		Log:             g.Log,
		Stat:            g.Stat,
	})
	if err != nil {
		return errors.Annotate(err, "session init")
	}
	g.Session = s
	g.Log.Infof("product id=%s device identity=%s host=%s", cfg.Device.ProductID, cfg.Device.DeviceID, s.Host())
	return nil
}

// NewLoop builds telemetry loop from config. Requires Init.
func (g *Global) NewLoop() (*telemetry.Loop, error) {
	clamp, err := telemetry.ParseClampPolicy(g.Config.Loop.ClampPolicy)
	if err != nil {
		return nil, err
	}
	return telemetry.NewLoop(telemetry.Options{
		Session:         g.Session,
		Tick:            g.Config.Tick(),
		LongPoll:        g.Config.Loop.LongPoll,
		ActivationRetry: g.Config.ActivationRetry(),
		NoticeInterval:  g.Config.Loop.ActivationNoticeSec,
		Clamp:           clamp,
		Alive:           g.Alive,
		Log:             g.Log,
		Stat:            g.Stat,
	}), nil
}

// ServeMetrics starts metrics listener if configured, stops with ctx.
func (g *Global) ServeMetrics(ctx context.Context) error {
	if g.Config.Metrics.Listen == "" {
		return nil
	}
	_, err := g.Stat.Serve(ctx, g.Config.Metrics.Listen, g.Log)
	return err
}

// HandleSignals stops Alive on SIGINT or SIGTERM.
func (g *Global) HandleSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigs:
			g.Log.Infof("signal=%v stopping", s)
			g.Stop()
		case <-g.Alive.StopChan():
		}
		signal.Stop(sigs)
	}()
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
