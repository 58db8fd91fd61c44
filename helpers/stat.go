package helpers

import (
	"io"
)

// Adder is satisfied by prometheus.Counter and expvar.Float.
type Adder interface {
	Add(float64)
}

type CountReader struct {
	R io.Reader
	C Adder
}

var _ io.Reader = &CountReader{}

func NewCountReader(r io.Reader, c Adder) io.Reader {
	return &CountReader{R: r, C: c}
}

func (cr *CountReader) Read(p []byte) (n int, err error) {
	n, err = cr.R.Read(p)
	if cr.C != nil && n > 0 {
		cr.C.Add(float64(n))
	}
	return
}

type CountWriter struct {
	W io.Writer
	C Adder
}

var _ io.Writer = &CountWriter{}

func NewCountWriter(w io.Writer, c Adder) io.Writer {
	return &CountWriter{W: w, C: c}
}

func (cw *CountWriter) Write(p []byte) (n int, err error) {
	n, err = cw.W.Write(p)
	if cw.C != nil && n > 0 {
		cw.C.Add(float64(n))
	}
	return
}
