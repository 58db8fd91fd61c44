package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/fridgesim/helpers"
	"github.com/temoto/fridgesim/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	// Historical device firmware did single recv of this size.
	// Larger responses arrive truncated, see Options.ReadLimit.
	DefaultReadLimit = 1024
)

// Transport contract:
// - one connection per Exchange, no keep-alive
// - connection is closed on every return path
// - response bytes may be shorter than server sent when ReadLimit is reached
type Transporter interface {
	Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error)
}

type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s addr=%s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsTransport(err error) bool {
	_, ok := errors.Cause(err).(*TransportError)
	return ok
}

type Options struct {
	NetworkTimeout time.Duration
	ReadLimit      int
	TLS            *tls.Config
	// Complete reports that buffer holds whole response, so reading may stop before EOF.
	Complete func([]byte) bool
	Log      *log2.Log
	LogWire  bool

	BytesSent helpers.Adder
	BytesRecv helpers.Adder
}

type TLS struct {
	opt Options
}

func NewTLS(opt Options) *TLS {
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ReadLimit <= 0 {
		opt.ReadLimit = DefaultReadLimit
	}
	if opt.TLS == nil {
		opt.TLS = &tls.Config{}
	}
	return &TLS{opt: opt}
}

// LoadTLSConfig builds client TLS config. Empty caFile means system roots.
func LoadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec
	}
	if caFile != "" {
		pem, err := ioutil.ReadFile(caFile)
		if err != nil {
			return nil, errors.Annotatef(err, "tls ca file=%s", caFile)
		}
		cfg.RootCAs = x509.NewCertPool()
		if !cfg.RootCAs.AppendCertsFromPEM(pem) {
			return nil, errors.NotValidf("tls ca file=%s no certificates", caFile)
		}
	}
	return cfg, nil
}

func (t *TLS) Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, &TransportError{Op: "addr", Addr: addr, Err: err}
	}
	cfg := t.opt.TLS.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	dialer := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: t.opt.NetworkTimeout},
		Config:    cfg,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: addr, Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(t.opt.NetworkTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "deadline", Addr: addr, Err: err}
	}

	if t.opt.LogWire {
		t.opt.Log.Debugf("--- sending addr=%s ---\n%s\n---", addr, payload)
	}
	w := helpers.NewCountWriter(conn, t.opt.BytesSent)
	if err = helpers.WriteAll(w, payload); err != nil {
		return nil, &TransportError{Op: "write", Addr: addr, Err: err}
	}

	r := helpers.NewCountReader(conn, t.opt.BytesRecv)
	b, full, err := helpers.ReadUntil(r, t.opt.ReadLimit, t.opt.Complete)
	if t.opt.LogWire {
		t.opt.Log.Debugf("--- response addr=%s ---\n%s\n---", addr, b)
	}
	if err != nil {
		if len(b) == 0 {
			return nil, &TransportError{Op: "read", Addr: addr, Err: err}
		}
		t.opt.Log.Debugf("transport read partial len=%d err=%v", len(b), err)
	}
	if len(b) == 0 {
		return nil, &TransportError{Op: "read", Addr: addr, Err: io.ErrUnexpectedEOF}
	}
	if full {
		t.opt.Log.Debugf("transport response reached read_limit=%d, may be truncated", t.opt.ReadLimit)
	}
	return b, nil
}
