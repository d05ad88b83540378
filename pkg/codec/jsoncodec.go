// Package codec holds the serializers shared by the response builder and the
// handler envelope protocol.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

var ErrTrailingContent = errors.New("json trailing content")

type jsonCodec struct{ strict bool }

// JSON marshals without HTML escaping and accepts unknown fields.
var JSON Codec = jsonCodec{}

// JSONStrict rejects unknown fields and trailing data.
var JSONStrict Codec = jsonCodec{strict: true}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (c jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return ErrTrailingContent
	}
	return nil
}

func (jsonCodec) ContentType() string { return "application/json; charset=utf-8" }
