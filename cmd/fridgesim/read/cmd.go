// Read prints current value of alias using stored credential.
package read

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/fridgesim/cmd/fridgesim/subcmd"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/internal/state"
	"github.com/temoto/fridgesim/internal/wire"
)

const usage = "read ALIAS"

var Mod = subcmd.Mod{Name: "read", Usage: usage, Main: Main}

var stdout io.Writer = os.Stdout

func Main(ctx context.Context, config *config.Config, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.NotValidf("usage: %s", usage)
	}
	alias := args[0]
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return err
	}
	ok, err := g.Session.Resume()
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFoundf("stored credential, run activate first")
	}

	o := g.Session.Read(ctx, alias)
	if !o.OK() {
		return errors.Errorf("read alias=%s outcome=%s", alias, o)
	}
	if v, ok := wire.ParseAliasValue(o.Payload, alias); ok {
		fmt.Fprintln(stdout, v)
	} else {
		fmt.Fprintf(stdout, "%s\n", o.Payload)
	}
	return nil
}
