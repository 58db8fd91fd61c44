package credstore

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/temoto/fridgesim/log2"
)

// File stores credential as plain text file `<root>/<pid>_<did>_cik`.
// Compatible with files left by older simulator versions.
type File struct {
	root string
	log  *log2.Log
}

func NewFile(root string, log *log2.Log) *File {
	return &File{root: root, log: log}
}

func (f *File) path(productID, deviceID string) (string, error) {
	name, err := Name(productID, deviceID)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, name), nil
}

func (f *File) Load(productID, deviceID string) (string, bool, error) {
	path, err := f.path(productID, deviceID)
	if err != nil {
		return "", false, err
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Annotatef(err, "credstore load path=%s", path)
	}
	if len(b) == 0 {
		f.log.Debugf("credstore path=%s empty", path)
		return "", false, nil
	}
	return string(b), true, nil
}

func (f *File) Save(productID, deviceID, cik string) error {
	path, err := f.path(productID, deviceID)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(f.root, 0700); err != nil {
		return errors.Annotatef(err, "credstore save mkdir=%s", f.root)
	}
	tmp := path + ".tmp"
	if err = ioutil.WriteFile(tmp, []byte(cik), 0600); err != nil {
		return errors.Annotatef(err, "credstore save path=%s", tmp)
	}
	return errors.Annotatef(os.Rename(tmp, path), "credstore save path=%s", path)
}
