package session

import (
	"fmt"
)

type Kind int

const (
	Failed Kind = iota // transport, parse or local precondition error, see Outcome.Err
	Success
	AuthFailure
	NotModified
	BadRequest
	BadMethod
	AlreadyActivated
	UnknownIdentity
	Other
)

var kindNames = [...]string{
	Failed:           "failed",
	Success:          "success",
	AuthFailure:      "auth_failure",
	NotModified:      "not_modified",
	BadRequest:       "bad_request",
	BadMethod:        "bad_method",
	AlreadyActivated: "already_activated",
	UnknownIdentity:  "unknown_identity",
	Other:            "other",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome of one platform operation.
// Code and Reason are set whenever response was parsed.
type Outcome struct {
	Kind    Kind
	Code    int
	Reason  string
	Payload []byte
	Err     error
}

func (o Outcome) OK() bool { return o.Kind == Success }

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s err=%v", o.Kind, o.Err)
	case o.Code != 0:
		return fmt.Sprintf("%s code=%d reason=%s", o.Kind, o.Code, o.Reason)
	}
	return o.Kind.String()
}

type op string

const (
	opActivate op = "activate"
	opRead     op = "read"
	opWrite    op = "write"
	opPoll     op = "poll"
)

// Status code to outcome kind, one closed mapping per operation.

func activateKind(code int) Kind {
	switch code {
	case 200:
		return Success
	case 404:
		return UnknownIdentity
	case 409:
		return AlreadyActivated
	}
	return Other
}

func readKind(code int) Kind {
	switch code {
	case 200:
		return Success
	case 400:
		return BadRequest
	case 401:
		return AuthFailure
	case 405:
		return BadMethod
	}
	return Other
}

func writeKind(code int) Kind {
	switch code {
	case 204:
		return Success
	case 400:
		return BadRequest
	case 401:
		return AuthFailure
	case 405:
		return BadMethod
	}
	return Other
}

func pollKind(code int) Kind {
	if code == 304 {
		return NotModified
	}
	return readKind(code)
}

func (o op) kind(code int) Kind {
	switch o {
	case opActivate:
		return activateKind(code)
	case opRead:
		return readKind(code)
	case opWrite:
		return writeKind(code)
	case opPoll:
		return pollKind(code)
	}
	panic("code error unknown op=" + string(o))
}
