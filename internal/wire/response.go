package wire

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// TimeFormat is RFC 1123 with GMT zone, used by Last-Modified and If-Modified-Since.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type Response struct {
	StatusCode    int
	Reason        string
	Headers       map[string]string // keys lower case
	Body          []byte
	ContentLength int // -1 when header is absent or invalid
	Truncated     bool
}

// Header returns value of named header, case-insensitive.
func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d %s body=%q", r.StatusCode, r.Reason, r.Body)
}

type MalformedResponseError struct {
	Reason string
	Raw    []byte
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

func IsMalformed(err error) bool {
	_, ok := errors.Cause(err).(*MalformedResponseError)
	return ok
}

func malformed(b []byte, format string, args ...interface{}) error {
	return &MalformedResponseError{Reason: fmt.Sprintf(format, args...), Raw: b}
}

// HeaderEnd returns index of body start or -1 if header block is not complete yet.
// Accepts CRLF CRLF and bare LF LF.
func HeaderEnd(b []byte) int {
	if i := bytes.Index(b, []byte("\r\n\r\n")); i >= 0 {
		if j := bytes.Index(b, []byte("\n\n")); j >= 0 && j+2 < i+4 {
			return j + 2
		}
		return i + 4
	}
	if j := bytes.Index(b, []byte("\n\n")); j >= 0 {
		return j + 2
	}
	return -1
}

// Complete reports whether b holds whole response: header block and Content-Length bytes of body.
// Without Content-Length response ends at connection close, so Complete returns false.
func Complete(b []byte) bool {
	end := HeaderEnd(b)
	if end < 0 {
		return false
	}
	r, err := ParseResponse(b)
	if err != nil {
		return false
	}
	switch {
	case r.StatusCode == 204 || r.StatusCode == 304 || (r.StatusCode >= 100 && r.StatusCode < 200):
		return true
	case r.ContentLength >= 0:
		return len(b)-end >= r.ContentLength
	}
	return false
}

func ParseResponse(b []byte) (*Response, error) {
	if len(b) == 0 {
		return nil, malformed(b, "empty")
	}
	end := HeaderEnd(b)
	if end < 0 {
		return nil, malformed(b, "header block is not terminated")
	}
	head := strings.Replace(string(b[:end]), "\r\n", "\n", -1)
	lines := strings.Split(strings.TrimRight(head, "\n"), "\n")

	r := &Response{Headers: make(map[string]string), ContentLength: -1}
	if err := parseStatusLine(r, lines[0]); err != nil {
		return nil, malformed(b, "%s", err.Error())
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, malformed(b, "header line=%q", line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:i]))
		r.Headers[key] = strings.TrimSpace(line[i+1:])
	}

	body := b[end:]
	if cl, ok := r.Headers["content-length"]; ok {
		if n, err := strconv.Atoi(cl); err == nil && n >= 0 {
			r.ContentLength = n
		}
	}
	if r.ContentLength >= 0 {
		if len(body) < r.ContentLength {
			r.Truncated = true
		} else {
			body = body[:r.ContentLength]
		}
	}
	r.Body = append([]byte(nil), body...)
	return r, nil
}

func parseStatusLine(r *Response, line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "HTTP/") {
		return fmt.Errorf("status line=%q", line)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return fmt.Errorf("status line=%q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return fmt.Errorf("status code=%q", parts[1])
	}
	r.StatusCode = code
	if len(parts) == 3 {
		r.Reason = strings.TrimSpace(parts[2])
	}
	return nil
}

// FormatResponse builds raw response bytes with Content-Length. Header order is sorted for stable output.
func FormatResponse(code int, reason string, headers map[string]string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s"+crlf, code, reason)
	keys := make([]string, 0, len(headers))
	hasLength := false
	for k := range headers {
		keys = append(keys, k)
		if strings.EqualFold(k, "Content-Length") {
			hasLength = true
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(k + ": " + headers[k] + crlf)
	}
	if !hasLength {
		buf.WriteString("Content-Length: " + strconv.Itoa(len(body)) + crlf)
	}
	buf.WriteString(crlf)
	buf.Write(body)
	return buf.Bytes()
}

// ParseAliasValue extracts value of alias from form encoded body like `alias=value`.
// Falls back to plain split on '=' for bodies which are not valid form encoding.
func ParseAliasValue(body []byte, alias string) (string, bool) {
	s := strings.TrimSpace(string(body))
	if !strings.Contains(s, "=") {
		return "", false
	}
	if q, err := url.ParseQuery(s); err == nil {
		if vs, ok := q[alias]; ok && len(vs) > 0 {
			return vs[0], true
		}
	}
	parts := strings.SplitN(s, "=", 2)
	if len(parts) == 2 && parts[0] == alias {
		return parts[1], true
	}
	return "", false
}

// NextWatermark returns lastModified advanced by one second, so the same update is not received again.
func NextWatermark(lastModified string) (string, error) {
	t, err := time.Parse(TimeFormat, strings.TrimSpace(lastModified))
	if err != nil {
		return "", errors.Annotatef(err, "last-modified=%q", lastModified)
	}
	return t.Add(time.Second).UTC().Format(TimeFormat), nil
}
