// Package cache stores serialized prediction results keyed by their input.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ledgercast/ledgercast/internal/compression"
	"github.com/ledgercast/ledgercast/internal/config"
)

// ErrCorruptEntry is returned when a cached payload cannot be decoded
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Cache is a byte-oriented TTL cache
type Cache interface {
	// Get returns the value and whether it was present and unexpired
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte) error         { return nil }
func (NopCache) Delete(context.Context, string) error              { return nil }
func (NopCache) Close() error                                      { return nil }

// New creates the cache selected by configuration
func New(cfg config.CacheConfig) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return NopCache{}, nil
	case "memory":
		return NewMemoryCache(cfg.TTL), nil
	case "redis":
		return NewRedisCache(RedisOptions{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
			TTL:      cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("unsupported cache type: %s (supported: none, memory, redis)", cfg.Type)
	}
}

// Codec stores JSON documents in a Cache through a Compressor
type Codec struct {
	backend    Cache
	compressor compression.Compressor
}

// NewCodec wraps a cache backend
func NewCodec(backend Cache, compressor compression.Compressor) *Codec {
	if compressor == nil {
		compressor = compression.NewNoneCompressor()
	}
	return &Codec{backend: backend, compressor: compressor}
}

// Load decodes the entry under key into v. It reports false on a miss.
func (c *Codec) Load(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	data, err := c.compressor.Decompress(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return true, nil
}

// Save encodes v and stores it under key
func (c *Codec) Save(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	compressed, err := c.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("failed to compress cache entry: %w", err)
	}
	return c.backend.Set(ctx, key, compressed)
}

// Delete removes the entry under key
func (c *Codec) Delete(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

// SeriesKey derives a stable key from a monthly series and the requested
// horizon. requested is the textual request ("auto" when absent).
func SeriesKey(start string, values []float64, requested string) string {
	h := sha256.New()
	h.Write([]byte(start))
	h.Write([]byte{0})
	for _, v := range values {
		h.Write([]byte(strconv.FormatUint(math.Float64bits(v), 16)))
		h.Write([]byte{','})
	}
	h.Write([]byte{0})
	h.Write([]byte(requested))
	return "prediction:" + hex.EncodeToString(h.Sum(nil))
}
