// Activate exchanges device identity for credential once and stores it.
package activate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/fridgesim/cmd/fridgesim/subcmd"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/internal/session"
	"github.com/temoto/fridgesim/internal/state"
)

const usage = "activate"

var Mod = subcmd.Mod{Name: "activate", Usage: usage, Main: Main}

var stdout io.Writer = os.Stdout

func Main(ctx context.Context, config *config.Config, args []string) error {
	g := state.GetGlobal(ctx)
	subcmd.AskIdentity(g.Log, config)
	if err := g.Init(ctx, config); err != nil {
		return err
	}

	o := g.Session.Activate(ctx)
	switch o.Kind {
	case session.Success:
		fmt.Fprintf(stdout, "activated product=%s device=%s cik=%s\n", config.Device.ProductID, config.Device.DeviceID, o.Payload)
		return nil
	case session.AlreadyActivated:
		ok, err := g.Session.Resume()
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(stdout, "already activated, stored credential is kept\n")
			return nil
		}
	}
	return errors.Errorf("activation failed outcome=%s", o)
}
