package credstore

import (
	"sync"

	"github.com/juju/errors"
)

type Memory struct {
	sync.Mutex
	m       map[string]string
	LoadErr error
	SaveErr error
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (m *Memory) Load(productID, deviceID string) (string, bool, error) {
	name, err := Name(productID, deviceID)
	if err != nil {
		return "", false, err
	}
	m.Lock()
	defer m.Unlock()
	if m.LoadErr != nil {
		return "", false, errors.Annotate(m.LoadErr, "credstore load")
	}
	v, ok := m.m[name]
	if v == "" {
		ok = false
	}
	return v, ok, nil
}

func (m *Memory) Save(productID, deviceID, cik string) error {
	name, err := Name(productID, deviceID)
	if err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	if m.SaveErr != nil {
		return errors.Annotate(m.SaveErr, "credstore save")
	}
	m.m[name] = cik
	return nil
}
