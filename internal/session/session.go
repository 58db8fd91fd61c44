// Package session owns device credential and drives activation protocol.
//
// State machine:
//
//	Uninitialized -> Activating -> Active -> (AuthInvalid -> Activating)*
//
// Read, Write and Poll run only in Active state. Any 401 moves session to
// AuthInvalid, the owner is expected to call Reactivate before next request.
//
// Session is not safe for concurrent use, it belongs to the telemetry loop.
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/fridgesim/internal/credstore"
	"github.com/temoto/fridgesim/internal/stat"
	"github.com/temoto/fridgesim/internal/transport"
	"github.com/temoto/fridgesim/internal/wire"
	"github.com/temoto/fridgesim/log2"
)

const (
	DefaultPort            = 443
	DefaultLongPollTimeout = 2 * time.Second
)

var ErrNotActive = errors.New("session is not active, activation required")

type State int

const (
	StateUninitialized State = iota
	StateActivating
	StateActive
	StateAuthInvalid
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateAuthInvalid:
		return "auth-invalid"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Identity struct {
	ProductID string
	DeviceID  string
}

// Host is product unique platform host name.
func (id Identity) Host(baseHost string) string {
	return id.ProductID + "." + baseHost
}

func (id Identity) String() string {
	return fmt.Sprintf("product=%s device=%s", id.ProductID, id.DeviceID)
}

type Options struct {
	Identity        Identity
	BaseHost        string
	Port            int
	LongPollTimeout time.Duration
	Transport       transport.Transporter
	Store           credstore.Store
	Log             *log2.Log
	Stat            *stat.Stat
}

type Session struct {
	id              Identity
	host            string
	addr            string
	longPollTimeout time.Duration
	transport       transport.Transporter
	store           credstore.Store
	log             *log2.Log
	stat            *stat.Stat

	cik             string
	needsActivation bool
	state           State
	watermarks      map[string]string
}

func New(opt Options) (*Session, error) {
	if opt.Identity.ProductID == "" {
		return nil, errors.NotValidf("session product id=empty")
	}
	if opt.Identity.DeviceID == "" {
		return nil, errors.NotValidf("session device id=empty")
	}
	if opt.BaseHost == "" {
		return nil, errors.NotValidf("session base host=empty")
	}
	if opt.Transport == nil || opt.Store == nil {
		panic("code error session.Options Transport and Store required")
	}
	if opt.Port == 0 {
		opt.Port = DefaultPort
	}
	if opt.LongPollTimeout == 0 {
		opt.LongPollTimeout = DefaultLongPollTimeout
	}
	host := opt.Identity.Host(opt.BaseHost)
	s := &Session{
		id:              opt.Identity,
		host:            host,
		addr:            net.JoinHostPort(host, strconv.Itoa(opt.Port)),
		longPollTimeout: opt.LongPollTimeout,
		transport:       opt.Transport,
		store:           opt.Store,
		log:             opt.Log,
		stat:            opt.Stat,
		state:           StateUninitialized,
		watermarks:      make(map[string]string),
	}
	return s, nil
}

func (s *Session) Identity() Identity            { return s.id }
func (s *Session) Host() string                  { return s.host }
func (s *Session) Addr() string                  { return s.addr }
func (s *Session) Credential() string            { return s.cik }
func (s *Session) State() State                  { return s.state }
func (s *Session) NeedsActivation() bool         { return s.needsActivation }
func (s *Session) Watermark(query string) string { return s.watermarks[query] }

// Ready reports whether read/write/poll are allowed.
func (s *Session) Ready() bool {
	return !s.needsActivation && s.cik != ""
}

// Bootstrap uses stored credential if present, otherwise activates.
func (s *Session) Bootstrap(ctx context.Context) Outcome {
	ok, err := s.Resume()
	if err != nil {
		s.log.Errorf("unable to read stored credential err=%v", err)
	}
	if ok {
		return Outcome{Kind: Success, Payload: []byte(s.cik)}
	}
	s.log.Infof("no stored credential, try to activate")
	return s.Activate(ctx)
}

// Resume adopts stored credential without network activity.
func (s *Session) Resume() (bool, error) {
	cik, ok, err := s.LoadStoredCredential()
	if err != nil || !ok {
		return false, err
	}
	s.log.Infof("stored cik=%s...", shortCIK(cik))
	s.adopt(cik)
	return true, nil
}

// Activate exchanges identity for new credential.
// Success replaces and persists credential. Persist failure is logged,
// new credential stays valid in memory.
func (s *Session) Activate(ctx context.Context) Outcome {
	s.state = StateActivating
	payload := wire.BuildActivate(s.host, s.id.ProductID, s.id.DeviceID)
	o, resp := s.exchange(ctx, opActivate, payload)
	if o.Kind == Success {
		cik := strings.TrimSpace(string(o.Payload))
		switch {
		case resp.Truncated:
			o = Outcome{Kind: Failed, Code: o.Code, Reason: o.Reason,
				Err: errors.Errorf("activation response truncated body=%d content-length=%d", len(resp.Body), resp.ContentLength)}
		case cik == "":
			o = Outcome{Kind: Failed, Code: o.Code, Reason: o.Reason, Err: errors.New("activation response without credential")}
		default:
			o.Payload = []byte(cik)
		}
	}
	s.stat.Activation(o.Kind.String())

	switch o.Kind {
	case Success:
		cik := string(o.Payload)
		s.log.Infof("activation response: new cik=%s...", shortCIK(cik))
		if err := s.PersistCredential(cik); err != nil {
			s.log.Errorf("credential valid for this run only err=%v", err)
		}
		s.adopt(cik)
		return o
	case AlreadyActivated:
		s.log.Infof("activation response: device already activated, there is no new cik")
	case UnknownIdentity:
		s.log.Infof("activation response: device identity (%s) activation not available or check product id (%s)",
			s.id.DeviceID, s.id.ProductID)
	case Failed:
		s.log.Errorf("activation err=%v", o.Err)
	default:
		s.log.Infof("activation response: failed request: %d %s", o.Code, o.Reason)
	}
	s.invalidate()
	return o
}

// Reactivate is Activate for session which lost its credential.
// On 409 it falls back to stored credential if that differs from the rejected one,
// for example when another process activated this identity.
func (s *Session) Reactivate(ctx context.Context) Outcome {
	rejected := s.cik
	o := s.Activate(ctx)
	if o.Kind != AlreadyActivated {
		return o
	}
	cik, ok, err := s.LoadStoredCredential()
	switch {
	case err != nil:
		s.log.Errorf("reactivate stored credential err=%v", err)
	case ok && cik != rejected:
		s.log.Infof("reactivate adopt stored cik=%s...", shortCIK(cik))
		s.adopt(cik)
	}
	return o
}

func (s *Session) LoadStoredCredential() (string, bool, error) {
	cik, ok, err := s.store.Load(s.id.ProductID, s.id.DeviceID)
	return cik, ok, errors.Annotate(err, "load stored credential")
}

func (s *Session) PersistCredential(cik string) error {
	s.log.Debugf("storing new cik")
	err := s.store.Save(s.id.ProductID, s.id.DeviceID, cik)
	if err != nil {
		s.stat.PersistFailure()
		return errors.Annotate(err, "persist credential")
	}
	return nil
}

// Read plain aliased read, query is alias name.
func (s *Session) Read(ctx context.Context, query string) Outcome {
	if !s.Ready() {
		return s.notActive(opRead)
	}
	o, _ := s.exchange(ctx, opRead, wire.BuildRead(s.host, s.cik, query))
	s.after(opRead, o)
	return o
}

// Write sends form encoded alias values, success is 204.
func (s *Session) Write(ctx context.Context, body []byte) Outcome {
	if !s.Ready() {
		return s.notActive(opWrite)
	}
	o, _ := s.exchange(ctx, opWrite, wire.BuildWrite(s.host, s.cik, body))
	s.after(opWrite, o)
	return o
}

// Poll is conditional long-poll read. Server answers 304 if alias did not change
// since watermark. Watermark advances by 1s past Last-Modified of each success.
func (s *Session) Poll(ctx context.Context, query string) Outcome {
	if !s.Ready() {
		return s.notActive(opPoll)
	}
	timeoutMs := int(s.longPollTimeout / time.Millisecond)
	payload := wire.BuildLongPollRead(s.host, s.cik, query, timeoutMs, s.watermarks[query])
	o, resp := s.exchange(ctx, opPoll, payload)
	if o.Kind == Success {
		if lm := resp.Header("Last-Modified"); lm != "" {
			if next, err := wire.NextWatermark(lm); err != nil {
				s.log.Errorf("poll query=%s watermark not updated err=%v", query, err)
			} else {
				s.watermarks[query] = next
			}
		}
	}
	s.after(opPoll, o)
	return o
}

func (s *Session) exchange(ctx context.Context, o op, payload []byte) (Outcome, *wire.Response) {
	b, err := s.transport.Exchange(ctx, s.addr, payload)
	if err != nil {
		s.stat.Request(string(o), Failed.String())
		return Outcome{Kind: Failed, Err: errors.Annotatef(err, "%s", o)}, nil
	}
	resp, err := wire.ParseResponse(b)
	if err != nil {
		s.stat.Request(string(o), Failed.String())
		return Outcome{Kind: Failed, Err: errors.Annotatef(err, "%s", o)}, nil
	}
	if resp.Truncated {
		s.log.Debugf("%s response truncated body=%d content-length=%d", o, len(resp.Body), resp.ContentLength)
	}
	kind := o.kind(resp.StatusCode)
	s.stat.Request(string(o), kind.String())
	out := Outcome{Kind: kind, Code: resp.StatusCode, Reason: resp.Reason}
	if kind == Success {
		out.Payload = resp.Body
	}
	return out, resp
}

func (s *Session) after(o op, out Outcome) {
	switch out.Kind {
	case Success, NotModified:
	case AuthFailure:
		s.log.Infof("%s 401: bad auth, cik may be bad", o)
		s.invalidate()
	case BadRequest:
		s.log.Infof("%s 400: bad request, check syntax", o)
	case BadMethod:
		s.log.Infof("%s 405: bad method", o)
	case Failed:
		s.log.Errorf("%s err=%v", o, out.Err)
	default:
		s.log.Infof("%s %d %s failed", o, out.Code, out.Reason)
	}
}

func (s *Session) notActive(o op) Outcome {
	s.stat.Request(string(o), Failed.String())
	return Outcome{Kind: Failed, Err: ErrNotActive}
}

func (s *Session) adopt(cik string) {
	s.cik = cik
	s.needsActivation = false
	s.state = StateActive
	s.stat.SetNeedsActivation(false)
}

func (s *Session) invalidate() {
	s.needsActivation = true
	s.state = StateAuthInvalid
	s.stat.SetNeedsActivation(true)
}

func shortCIK(cik string) string {
	if len(cik) > 10 {
		return cik[:10]
	}
	return cik
}
