package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Message is the opaque domain value carried by every loop.
type Message = map[string]any

var (
	ErrEncode       = errors.New("codec: encode failed")
	ErrDecode       = errors.New("codec: decode failed")
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

// Encode serializes m; failures wrap ErrEncode.
func Encode(c Codec, m Message) ([]byte, error) {
	b, err := c.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrEncode, c.ContentType(), err)
	}
	return b, nil
}

// Decode parses a single Message; failures wrap ErrDecode.
// A payload that decodes to anything other than an object is a protocol mismatch.
func Decode(c Codec, data []byte) (Message, error) {
	var m Message
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrDecode, c.ContentType(), err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w (%s): payload is not an object", ErrDecode, c.ContentType())
	}
	return m, nil
}

// ByName resolves the codec names accepted in relay manifests.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
