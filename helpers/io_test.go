package helpers

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteAll(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	content := []byte("12345678901234567890")
	tw := &throttleWriter{buf, 7}
	n, err := tw.Write(content[:2])
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, buf.Len())
	buf.Reset()
	n, err = tw.Write(content)
	assert.NoError(t, err)
	assert.Equal(t, tw.n, n)
	assert.Equal(t, tw.n, buf.Len())
	buf.Reset()
	err = WriteAll(tw, content)
	assert.NoError(t, err)
	assert.Equal(t, len(content), buf.Len())
}

type throttleWriter struct {
	w io.Writer
	n int
}

func (tw *throttleWriter) Write(p []byte) (n int, err error) {
	limit := len(p)
	if limit > tw.n {
		limit = tw.n
	}
	// log.Printf("throttle len=%d cap=%d sliced=%d", len(p), cap(p), len(p[:limit]))
	return tw.w.Write(p[:limit])
}

func TestReadUntil(t *testing.T) {
	t.Parallel()
	type Case struct {
		name      string
		input     string
		limit     int
		done      func([]byte) bool
		expect    string
		expectFul bool
	}
	cases := []Case{
		{"eof", "hello", 16, nil, "hello", false},
		{"limit", "hello world", 5, nil, "hello", true},
		{"done", "abc|def", 16, func(b []byte) bool { return bytes.IndexByte(b, '|') >= 0 }, "abc|", false},
		{"empty", "", 8, nil, "", false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			r := &throttleReader{r: bytes.NewReader([]byte(c.input)), n: 1}
			b, full, err := ReadUntil(r, c.limit, c.done)
			assert.NoError(t, err)
			assert.Equal(t, c.expect, string(b))
			assert.Equal(t, c.expectFul, full)
		})
	}
}

type throttleReader struct {
	r io.Reader
	n int
}

func (tr *throttleReader) Read(p []byte) (int, error) {
	if len(p) > tr.n {
		p = p[:tr.n]
	}
	return tr.r.Read(p)
}
