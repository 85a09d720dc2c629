// Package codec centralizes record value encoding.
//
// Tickcat intentionally treats codec selection as a breaking-change boundary:
// if you change codecs, sealed segments created by older codecs may no longer
// decode. Segment headers store the codec name so files stay self-describing.
package codec

import "fmt"

// Codec encodes/decodes record values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
//
// This is used when opening sealed segments, which record the codec name in
// their header.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
