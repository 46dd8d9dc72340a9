// Package artifact implements the content-addressed artifact cache and
// chunked transfer (C8): cache-hit negotiation via ArtifactCacheQuery, and
// checksum-verified reassembly of chunked ArtifactChunk streams.
package artifact

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru"
	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/klauspost/compress/zstd"
)

// defaultCacheSize bounds the number of distinct artifacts held in memory
// at once (§4.7: content-addressed cache).
const defaultCacheSize = 256

// Cache is a bounded, content-addressed store of decompressed artifact
// bytes, backed by hashicorp/golang-lru.
type Cache struct {
	entries *lru.Cache
}

// New constructs a Cache bounded at size entries (defaultCacheSize when
// size <= 0).
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, apperr.Internal("artifact.New", err)
	}
	return &Cache{entries: c}, nil
}

// Put stores a, keyed by ArtifactID. The caller is responsible for having
// already verified a.Checksum against the decompressed a.Data.
func (c *Cache) Put(a types.Artifact) {
	c.entries.Add(a.ArtifactID, a)
}

// Get returns the cached Artifact for id, if present.
func (c *Cache) Get(id string) (types.Artifact, bool) {
	v, ok := c.entries.Get(id)
	if !ok {
		return types.Artifact{}, false
	}
	return v.(types.Artifact), true
}

// Query implements the §4.7 cache-hit negotiation: given the list of
// artifact ids a worker claims to hold, reports which are known to
// the cache (cached) and which must be streamed (missing).
func (c *Cache) Query(artifactIDs []string) (cached, missing []string) {
	for _, id := range artifactIDs {
		if _, ok := c.entries.Get(id); ok {
			cached = append(cached, id)
		} else {
			missing = append(missing, id)
		}
	}
	return cached, missing
}

// Decompress reverses the §4.7 Compression tag over data.
func Decompress(data []byte, compression types.CompressionKind) ([]byte, error) {
	switch compression {
	case types.CompressionNone, "":
		return data, nil
	case types.CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("artifact: gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case types.CompressionZstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("artifact: zstd reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("artifact: unknown compression kind %q", compression)
	}
}

// Compress applies the §4.7 Compression tag to data.
func Compress(data []byte, compression types.CompressionKind) ([]byte, error) {
	switch compression {
	case types.CompressionNone, "":
		return data, nil
	case types.CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("artifact: gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("artifact: gzip close: %w", err)
		}
		return buf.Bytes(), nil
	case types.CompressionZstd:
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("artifact: zstd writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("artifact: zstd write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("artifact: zstd close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("artifact: unknown compression kind %q", compression)
	}
}

// Checksum computes the §4.7 SHA-256 hex digest over decompressed bytes.
func Checksum(decompressed []byte) string {
	sum := sha256.Sum256(decompressed)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum implements the §4.7 integrity check: a mismatch returns
// apperr.Integrity, and the transfer must be discarded by the caller.
func VerifyChecksum(decompressed []byte, declared string) error {
	got := Checksum(decompressed)
	if got != declared {
		return apperr.Integrity("artifact.VerifyChecksum", "checksum mismatch: declared "+declared+", computed "+got)
	}
	return nil
}

// NewArtifactID mints an id for a freshly produced artifact that has no
// natural content address of its own.
func NewArtifactID() string {
	return ids.Artifact()
}
