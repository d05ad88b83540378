package response

import (
	"fmt"
	"io"
)

// Kind tags the variant held by a Payload.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindText
	KindBytes
	KindValue
	KindError
	KindStream
)

var kindNames = [...]string{
	KindEmpty:  "empty",
	KindText:   "text",
	KindBytes:  "bytes",
	KindValue:  "json",
	KindError:  "error",
	KindStream: "stream",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps an envelope kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindEmpty, nil
	}
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPayloadType, s)
}

// Payload is what a handler sends. The zero value is Empty.
type Payload struct {
	kind   Kind
	text   string
	bytes  []byte
	value  any
	err    error
	stream io.Reader
}

func Empty() Payload { return Payload{} }
func Text(s string) Payload { return Payload{kind: KindText, text: s} }
func Bytes(b []byte) Payload { return Payload{kind: KindBytes, bytes: b} }
func Value(v any) Payload { return Payload{kind: KindValue, value: v} }
func Err(err error) Payload { return Payload{kind: KindError, err: err} }
func Stream(r io.Reader) Payload { return Payload{kind: KindStream, stream: r} }

func (p Payload) Kind() Kind { return p.kind }
