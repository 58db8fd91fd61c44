package wire

import (
	"bytes"
	"net/url"
	"strconv"
)

const (
	PathActivate = "/provision/activate"
	PathAlias    = "/onep:v1/stack/alias"

	ContentTypeForm = "application/x-www-form-urlencoded; charset=utf-8"
	HeaderCIK       = "X-EXOSITE-CIK"
)

const crlf = "\r\n"

type request struct {
	buf bytes.Buffer
}

func newRequest(method, target string) *request {
	r := &request{}
	r.buf.Grow(256)
	r.buf.WriteString(method)
	r.buf.WriteByte(' ')
	r.buf.WriteString(target)
	r.buf.WriteString(" HTTP/1.1" + crlf)
	return r
}

func (r *request) header(name, value string) *request {
	r.buf.WriteString(name)
	r.buf.WriteString(": ")
	r.buf.WriteString(value)
	r.buf.WriteString(crlf)
	return r
}

func (r *request) body(b []byte) []byte {
	if b != nil {
		r.header("Content-Length", strconv.Itoa(len(b)))
	}
	r.buf.WriteString(crlf)
	r.buf.Write(b)
	return r.buf.Bytes()
}

// BuildActivate exchanges device identity for a credential.
// Vendor and model are both the product id.
func BuildActivate(host, productID, deviceID string) []byte {
	body := "vendor=" + url.QueryEscape(productID) +
		"&model=" + url.QueryEscape(productID) +
		"&sn=" + url.QueryEscape(deviceID)
	return newRequest("POST", PathActivate).
		header("Host", host).
		header("Connection", "Close").
		header("Content-Type", ContentTypeForm).
		body([]byte(body))
}

// BuildWrite sends form encoded alias values.
func BuildWrite(host, cik string, body []byte) []byte {
	if body == nil {
		body = []byte{}
	}
	return newRequest("POST", PathAlias).
		header("Host", host).
		header(HeaderCIK, cik).
		header("Connection", "Close").
		header("Content-Type", ContentTypeForm).
		body(body)
}

func BuildRead(host, cik, query string) []byte {
	return newRequest("GET", PathAlias+"?"+query).
		header("Host", host).
		header(HeaderCIK, cik).
		header("Accept", ContentTypeForm).
		body(nil)
}

// BuildLongPollRead asks server to hold the request up to timeoutMs until alias changes.
// ifModifiedSince is omitted when empty.
func BuildLongPollRead(host, cik, query string, timeoutMs int, ifModifiedSince string) []byte {
	r := newRequest("GET", PathAlias+"?"+query).
		header("Host", host).
		header("Accept", ContentTypeForm).
		header(HeaderCIK, cik).
		header("Request-Timeout", strconv.Itoa(timeoutMs))
	if ifModifiedSince != "" {
		r.header("If-Modified-Since", ifModifiedSince)
	}
	return r.body(nil)
}
