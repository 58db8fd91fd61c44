package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/juju/errors"
)

type MockFunc func(addr string, payload []byte) ([]byte, error)

// Mock replays canned responses, in order, and records requests.
// Fun takes priority over Responses queue.
type Mock struct {
	sync.Mutex
	T         testing.TB
	Fun       MockFunc
	Responses [][]byte
	Requests  [][]byte
	Addrs     []string
}

func NewMock(t testing.TB, responses ...[]byte) *Mock {
	return &Mock{T: t, Responses: responses}
}

func (m *Mock) Push(responses ...[]byte) {
	m.Lock()
	m.Responses = append(m.Responses, responses...)
	m.Unlock()
}

func (m *Mock) Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	m.Lock()
	defer m.Unlock()
	m.Requests = append(m.Requests, append([]byte(nil), payload...))
	m.Addrs = append(m.Addrs, addr)
	if m.T != nil {
		m.T.Logf("mock exchange addr=%s payload=%q", addr, payload)
	}
	if m.Fun != nil {
		return m.Fun(addr, payload)
	}
	if len(m.Responses) == 0 {
		err := errors.Errorf("mock no response for request=%q", payload)
		return nil, &TransportError{Op: "mock", Addr: addr, Err: err}
	}
	r := m.Responses[0]
	m.Responses = m.Responses[1:]
	if r == nil {
		return nil, &TransportError{Op: "mock", Addr: addr, Err: errors.New("connection refused")}
	}
	return r, nil
}

// Sent returns copy of recorded requests.
func (m *Mock) Sent() [][]byte {
	m.Lock()
	defer m.Unlock()
	return append([][]byte(nil), m.Requests...)
}
