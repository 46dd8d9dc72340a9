package artifact

import (
	"testing"

	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryReportsCachedAndMissing(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)

	c.Put(types.Artifact{ArtifactID: "X"})
	c.Put(types.Artifact{ArtifactID: "Y"})

	cached, missing := c.Query([]string{"X", "Y", "Z"})
	assert.Equal(t, []string{"X", "Y"}, cached)
	assert.Equal(t, []string{"Z"}, missing)
}

func TestQueryAllMissingWhenCacheEmpty(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)

	cached, missing := c.Query([]string{"A"})
	assert.Empty(t, cached)
	assert.Equal(t, []string{"A"}, missing)
}

func TestGetReturnsStoredArtifact(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)

	c.Put(types.Artifact{ArtifactID: "X", Data: []byte("payload")})

	got, ok := c.Get("X")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got.Data)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCompressDecompressRoundtripsGzip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog")

	compressed, err := Compress(original, types.CompressionGzip)
	require.NoError(t, err)

	decompressed, err := Decompress(compressed, types.CompressionGzip)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestCompressDecompressRoundtripsZstd(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog")

	compressed, err := Compress(original, types.CompressionZstd)
	require.NoError(t, err)

	decompressed, err := Decompress(compressed, types.CompressionZstd)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestCompressDecompressNoneIsIdentity(t *testing.T) {
	original := []byte("raw bytes")

	compressed, err := Compress(original, types.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, original, compressed)

	decompressed, err := Decompress(compressed, types.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestVerifyChecksumDetectsMismatch(t *testing.T) {
	data := []byte("payload")
	good := Checksum(data)

	require.NoError(t, VerifyChecksum(data, good))

	err := VerifyChecksum(data, "deadbeef")
	require.Error(t, err)
}

func TestNewArtifactIDIsNonEmpty(t *testing.T) {
	assert.NotEmpty(t, NewArtifactID())
}
