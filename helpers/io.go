package helpers

import (
	"io"
)

func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == len(b) {
			return nil
		}
		b = b[n:]
	}
	return nil
}

// ReadUntil reads into buffer of `limit` bytes until EOF, full buffer or done(data so far) returns true.
// EOF is not an error. Returned bool reports whether buffer filled before done/EOF.
func ReadUntil(r io.Reader, limit int, done func([]byte) bool) ([]byte, bool, error) {
	buf := make([]byte, limit)
	n := 0
	for n < limit {
		m, err := r.Read(buf[n:])
		n += m
		if done != nil && m > 0 && done(buf[:n]) {
			return buf[:n], false, nil
		}
		if err == io.EOF {
			return buf[:n], false, nil
		}
		if err != nil {
			return buf[:n], false, err
		}
	}
	return buf[:n], true, nil
}
