package credstore

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"
	"github.com/temoto/fridgesim/log2"
)

// extremofile rewrites files in place without truncation,
// so value is kept in fixed size record: big endian uint16 length, data, zero padding.
const extremoRecordSize = 1024

func encodeRecord(cik string) ([]byte, error) {
	if len(cik) > extremoRecordSize-2 {
		return nil, errors.NotValidf("credential length=%d max=%d", len(cik), extremoRecordSize-2)
	}
	b := make([]byte, extremoRecordSize)
	binary.BigEndian.PutUint16(b, uint16(len(cik)))
	copy(b[2:], cik)
	return b, nil
}

func decodeRecord(b []byte) (string, error) {
	if len(b) < 2 {
		return "", errors.NotValidf("credential record length=%d", len(b))
	}
	n := int(binary.BigEndian.Uint16(b))
	if n > len(b)-2 {
		return "", errors.NotValidf("credential record declared=%d actual=%d", n, len(b)-2)
	}
	return string(b[2 : 2+n]), nil
}

// Extremo stores credential in crc checked main+backup files, one directory per identity.
type Extremo struct {
	root string
	log  *log2.Log
}

func NewExtremo(root string, log *log2.Log) *Extremo {
	return &Extremo{root: root, log: log}
}

func (e *Extremo) storage(productID, deviceID string) (interface {
	Read() ([]byte, error)
	Write([]byte) (int, error)
}, error) {
	name, err := Name(productID, deviceID)
	if err != nil {
		return nil, err
	}
	return extremofile.New(extremofile.Config{
		Dir:      filepath.Join(e.root, name),
		DirPerm:  0700,
		FilePerm: 0600,
	}), nil
}

func (e *Extremo) Load(productID, deviceID string) (string, bool, error) {
	s, err := e.storage(productID, deviceID)
	if err != nil {
		return "", false, err
	}
	tbegin := time.Now()
	b, err := s.Read()
	e.log.Debugf("credstore read duration=%v", time.Since(tbegin))
	if b != nil && err != nil {
		// main copy broken, backup worked
		e.log.Errorf("credstore ignore non-critical storage err=%v", err)
		err = nil
	}
	if err != nil {
		return "", false, errors.Annotatef(err, "credstore load critical=%t", extremofile.IsCritical(err))
	}
	if len(b) == 0 {
		return "", false, nil
	}
	cik, err := decodeRecord(b)
	if err != nil {
		return "", false, errors.Annotate(err, "credstore load")
	}
	return cik, cik != "", nil
}

func (e *Extremo) Save(productID, deviceID, cik string) error {
	s, err := e.storage(productID, deviceID)
	if err != nil {
		return err
	}
	b, err := encodeRecord(cik)
	if err != nil {
		return errors.Annotate(err, "credstore save")
	}
	tbegin := time.Now()
	_, err = s.Write(b)
	e.log.Debugf("credstore write duration=%v", time.Since(tbegin))
	return errors.Annotate(err, "credstore save")
}
