// Run activates device if needed, then reports telemetry until stopped.
package run

import (
	"context"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/fridgesim/cmd/fridgesim/subcmd"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/internal/state"
)

const usage = "run"

var Mod = subcmd.Mod{Name: "run", Usage: usage, Main: Main}

func Main(ctx context.Context, config *config.Config, args []string) error {
	g := state.GetGlobal(ctx)
	subcmd.AskIdentity(g.Log, config)
	if err := g.Init(ctx, config); err != nil {
		return err
	}
	g.HandleSignals()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-g.Alive.StopChan()
		cancel()
	}()

	if err := g.ServeMetrics(ctx); err != nil {
		return errors.Annotate(err, "metrics")
	}

	g.Log.Infof("device activation...")
	if o := g.Session.Bootstrap(ctx); !o.OK() {
		g.Log.Infof("activation pending outcome=%s, main loop will retry", o)
	}

	loop, err := g.NewLoop()
	if err != nil {
		return err
	}
	subcmd.SdNotify(g.Log, daemon.SdNotifyReady)
	err = loop.Run(ctx)
	subcmd.SdNotify(g.Log, daemon.SdNotifyStopping)

	g.Stop()
	g.Alive.Wait()
	if errors.Cause(err) == context.Canceled {
		return nil
	}
	return err
}
