package artifact

import (
	"testing"

	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksThenAssembleRoundtrips(t *testing.T) {
	original := types.Artifact{
		ArtifactID:  "art-1",
		Compression: types.CompressionGzip,
		Data:        []byte("a rather long payload that should still roundtrip cleanly across several chunks of small size"),
	}

	chunks, err := Chunks(original, 8)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	asm := NewAssembler("art-1")
	var result types.Artifact
	var done bool
	for _, c := range chunks {
		result, done, err = asm.Accept(c)
		require.NoError(t, err)
	}
	require.True(t, done)
	assert.Equal(t, original.Data, result.Data)
	assert.Equal(t, original.ArtifactID, result.ArtifactID)
	// Size must be the uncompressed length, not the compressed wire size
	// the chunks carried — gzip makes this short payload longer.
	assert.Equal(t, int64(len(original.Data)), result.Size)
	assert.Equal(t, int64(len(original.Data)), result.OriginalSize)
}

func TestChunksSingleFrameForSmallArtifact(t *testing.T) {
	original := types.Artifact{
		ArtifactID:  "art-2",
		Compression: types.CompressionNone,
		Data:        []byte("small"),
	}

	chunks, err := Chunks(original, 1<<20)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsLast)
	assert.Equal(t, 0, chunks[0].Sequence)
}

func TestAssemblerRejectsOutOfOrderSequence(t *testing.T) {
	asm := NewAssembler("art-3")

	_, _, err := asm.Accept(protocol.ArtifactChunk{ArtifactID: "art-3", Sequence: 1, Data: []byte("x")})
	require.Error(t, err)
}

func TestAssemblerDiscardsOnChecksumMismatch(t *testing.T) {
	asm := NewAssembler("art-4")

	_, done, err := asm.Accept(protocol.ArtifactChunk{
		ArtifactID:   "art-4",
		Sequence:     0,
		Data:         []byte("corrupted"),
		IsLast:       true,
		Compression:  string(types.CompressionNone),
		Checksum:     "not-the-real-checksum",
		OriginalSize: 9,
	})
	require.Error(t, err)
	assert.False(t, done)

	// The assembler is now terminal: feeding it again fails rather than
	// silently accepting a fresh sequence 0.
	_, _, err = asm.Accept(protocol.ArtifactChunk{ArtifactID: "art-4", Sequence: 0, IsLast: true})
	require.Error(t, err)
}

func TestAssemblerRejectsMismatchedArtifactID(t *testing.T) {
	asm := NewAssembler("art-5")

	_, _, err := asm.Accept(protocol.ArtifactChunk{ArtifactID: "other", Sequence: 0})
	require.Error(t, err)
}

func TestCacheHitNegotiationOnlyMissingStreamed(t *testing.T) {
	// Mirrors the scenario where the orchestrator holds X and Y but not Z:
	// only Z's chunks are produced and streamed, final chunk IsLast=true.
	c, err := New(0)
	require.NoError(t, err)
	c.Put(types.Artifact{ArtifactID: "X"})
	c.Put(types.Artifact{ArtifactID: "Y"})

	cached, missing := c.Query([]string{"X", "Y", "Z"})
	resp := protocol.ArtifactCacheResponse{JobID: "job-1", Cached: cached, Missing: missing}

	assert.Equal(t, []string{"X", "Y"}, resp.Cached)
	assert.Equal(t, []string{"Z"}, resp.Missing)

	toStream := types.Artifact{ArtifactID: "Z", Data: []byte("zzz")}
	chunks, err := Chunks(toStream, 1<<20)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[len(chunks)-1].IsLast)
}
