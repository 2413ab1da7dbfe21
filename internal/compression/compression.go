// Package compression wraps the codecs used for cached prediction payloads.
//
// Every compressed payload starts with one byte naming the algorithm that
// produced it. Decompress follows that byte rather than the receiver, so
// cache entries written before a change to cache.compression stay readable.
package compression

import (
	"fmt"
	"strings"

	"github.com/golang/snappy"
)

// Algorithm is the tag byte written ahead of each payload
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
)

var algorithmNames = map[Algorithm]string{
	None:   "none",
	Snappy: "snappy",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(a))
}

// ParseAlgorithm maps a cache.compression setting to an Algorithm. An empty
// setting means none.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for algo, n := range algorithmNames {
		if n == name {
			return algo, nil
		}
	}
	return None, fmt.Errorf("unsupported compression algorithm: %s", name)
}

// Compressor turns cache payloads into tagged byte strings and back
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
}

// GetCompressor returns the compressor writing algo
func GetCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None:
		return NewNoneCompressor(), nil
	case Snappy:
		return NewSnappyCompressor(), nil
	}
	return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
}

func NewNoneCompressor() Compressor   { return tagged{algo: None} }
func NewSnappyCompressor() Compressor { return tagged{algo: Snappy} }

type tagged struct {
	algo Algorithm
}

func (t tagged) Algorithm() Algorithm { return t.algo }

func (t tagged) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch t.algo {
	case Snappy:
		out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(data)))
		out[0] = byte(Snappy)
		return append(out, snappy.Encode(nil, data)...), nil
	default:
		out := make([]byte, 0, 1+len(data))
		out = append(out, byte(None))
		return append(out, data...), nil
	}
}

// Decompress decodes data by its own tag byte
func (t tagged) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	body := data[1:]
	switch Algorithm(data[0]) {
	case None:
		return body, nil
	case Snappy:
		out, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("snappy decompress failed: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown compression tag 0x%02x", data[0])
}
