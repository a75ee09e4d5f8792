package model

import (
	"bytes"
	"encoding/gob"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// EncodeBytes gob-encodes v. Interface-typed fields need their concrete
// types registered with gob.Register, which each estimator package does in
// init.
func EncodeBytes(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrapf(err, "gob encode %T", v)
	}
	return buf.Bytes(), nil
}

// DecodeBytes gob-decodes data into v, which must be a pointer.
func DecodeBytes(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.Wrapf(err, "gob decode %T", v)
	}
	return nil
}
