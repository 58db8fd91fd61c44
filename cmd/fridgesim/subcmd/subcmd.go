// Support sub-commands in fridgesim application.
// It's simple but fine so far.
package subcmd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/fridgesim/helpers/cli"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/log2"
)

type Mod struct {
	Name  string
	Usage string
	Main  func(ctx context.Context, config *config.Config, args []string) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

func SdNotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}

// AskIdentity lets operator replace device identity before activation.
func AskIdentity(log *log2.Log, config *config.Config) {
	if !config.Device.Prompt {
		return
	}
	def := config.Device.DeviceID
	fmt.Printf("The default Device Identity is: %s\n", def)
	id := cli.Ask("If OK, hit return, if you prefer a different Identity, type it here: ", def, def)
	if id != def {
		log.Infof("device identity changed=%s", id)
		config.Device.DeviceID = id
	}
}
