// Package credstore keeps device credential (CIK) across restarts.
// Key is product id + device id, value is opaque string.
// Absence of stored credential is not an error.
package credstore

import (
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/fridgesim/log2"
)

const (
	BackendExtremofile = "extremofile"
	BackendFile        = "file"
	BackendMemory      = "memory"
)

type Store interface {
	// Load returns ("", false, nil) when nothing is stored.
	Load(productID, deviceID string) (string, bool, error)
	Save(productID, deviceID, cik string) error
}

// Name is storage entry name for identity, same as historical `<pid>_<did>_cik` file.
func Name(productID, deviceID string) (string, error) {
	for _, part := range []string{productID, deviceID} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`+"\x00") {
			return "", errors.NotValidf("credential key part=%q", part)
		}
	}
	return productID + "_" + deviceID + "_cik", nil
}

func New(backend, root string, log *log2.Log) (Store, error) {
	switch backend {
	case "", BackendExtremofile:
		if root == "" {
			return nil, errors.NotValidf("credstore %s root=empty", BackendExtremofile)
		}
		return NewExtremo(root, log), nil
	case BackendFile:
		if root == "" {
			return nil, errors.NotValidf("credstore %s root=empty", BackendFile)
		}
		return NewFile(root, log), nil
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, errors.NotSupportedf("credstore backend=%s", backend)
}
