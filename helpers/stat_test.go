package helpers

import (
	"bytes"
	"expvar"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountReader(t *testing.T) {
	t.Parallel()
	var counter expvar.Float
	s := NewCountReader(strings.NewReader(strings.Repeat(".", 1024)), &counter)
	assert.Equal(t, float64(0), counter.Value())
	buf := make([]byte, 17)
	_, _ = s.Read(buf[:0])
	assert.Equal(t, float64(0), counter.Value())
	_, _ = s.Read(buf[:5])
	assert.Equal(t, float64(5), counter.Value())
	_, _ = s.Read(buf)
	assert.Equal(t, float64(22), counter.Value())
}

func TestCountWriter(t *testing.T) {
	t.Parallel()
	var counter expvar.Float
	s := NewCountWriter(bytes.NewBuffer(nil), &counter)
	buf := make([]byte, 17)
	_, _ = s.Write(buf[:0])
	assert.Equal(t, float64(0), counter.Value())
	_, _ = s.Write(buf[:5])
	assert.Equal(t, float64(5), counter.Value())
	_, _ = s.Write(buf)
	assert.Equal(t, float64(22), counter.Value())
}

func TestCountWriterNilCounter(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	s := NewCountWriter(buf, nil)
	n, err := s.Write([]byte("ok"))
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ok", buf.String())
}
