package artifact

import (
	"bytes"
	"strconv"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// Assembler reassembles one artifact from an in-order stream of
// protocol.ArtifactChunk frames (§4.7: sequence starts at 0, strictly
// increasing, terminated by IsLast).
type Assembler struct {
	artifactID  string
	buf         bytes.Buffer
	nextSeq     int
	compression types.CompressionKind
	checksum    string
	origSize    int64
	done        bool
}

// NewAssembler starts reassembly for the artifact named by the first
// chunk's ArtifactID.
func NewAssembler(artifactID string) *Assembler {
	return &Assembler{artifactID: artifactID}
}

// Accept appends chunk to the in-progress transfer. It returns the
// completed, integrity-verified Artifact once the chunk carrying
// IsLast=true has been accepted; otherwise it returns ok=false.
//
// A mismatched sequence number or a failed checksum on completion
// discards all buffered state and returns apperr.Integrity (mirroring
// the ArtifactCorrupt outcome in §4.7) — the caller must request a
// retransmission rather than retry the assembler.
func (a *Assembler) Accept(chunk protocol.ArtifactChunk) (types.Artifact, bool, error) {
	if a.done {
		return types.Artifact{}, false, apperr.BusinessRule("artifact.Accept", "transfer already completed for "+a.artifactID)
	}
	if chunk.ArtifactID != a.artifactID {
		return types.Artifact{}, false, apperr.Validation("artifact.Accept", "chunk artifact id does not match in-progress transfer")
	}
	if chunk.Sequence != a.nextSeq {
		a.discard()
		return types.Artifact{}, false, apperr.Integrity("artifact.Accept", "out-of-order chunk sequence, expected "+strconv.Itoa(a.nextSeq))
	}

	a.buf.Write(chunk.Data)
	a.nextSeq++
	a.compression = types.CompressionKind(chunk.Compression)
	a.checksum = chunk.Checksum
	a.origSize = chunk.OriginalSize

	if !chunk.IsLast {
		return types.Artifact{}, false, nil
	}

	decompressed, err := Decompress(a.buf.Bytes(), a.compression)
	if err != nil {
		a.discard()
		return types.Artifact{}, false, apperr.Integrity("artifact.Accept", "decompression failed: "+err.Error())
	}
	if err := VerifyChecksum(decompressed, a.checksum); err != nil {
		a.discard()
		return types.Artifact{}, false, err
	}

	result := types.Artifact{
		ArtifactID:   a.artifactID,
		Checksum:     a.checksum,
		Size:         int64(len(decompressed)),
		Compression:  a.compression,
		OriginalSize: a.origSize,
		Data:         decompressed,
	}
	a.done = true
	return result, true, nil
}

func (a *Assembler) discard() {
	a.buf.Reset()
	a.nextSeq = 0
	a.done = true
}

// Chunks splits a's decompressed Data into a sequence of
// protocol.ArtifactChunk frames of at most chunkSize bytes each, ready to
// stream in order with the final frame carrying IsLast=true. The artifact
// is compressed as a whole before chunking, matching a transfer that
// compresses once and frames the result.
func Chunks(a types.Artifact, chunkSize int) ([]protocol.ArtifactChunk, error) {
	if chunkSize <= 0 {
		chunkSize = 1 << 20 // 1 MiB default frame size
	}

	compressed, err := Compress(a.Data, a.Compression)
	if err != nil {
		return nil, err
	}

	checksum := Checksum(a.Data)
	originalSize := int64(len(a.Data))

	if len(compressed) == 0 {
		return []protocol.ArtifactChunk{{
			ArtifactID:   a.ArtifactID,
			Data:         nil,
			Sequence:     0,
			IsLast:       true,
			Compression:  string(a.Compression),
			OriginalSize: originalSize,
			Checksum:     checksum,
		}}, nil
	}

	var chunks []protocol.ArtifactChunk
	for seq, off := 0, 0; off < len(compressed); seq++ {
		end := off + chunkSize
		if end > len(compressed) {
			end = len(compressed)
		}
		chunks = append(chunks, protocol.ArtifactChunk{
			ArtifactID:   a.ArtifactID,
			Data:         compressed[off:end],
			Sequence:     seq,
			IsLast:       end == len(compressed),
			Compression:  string(a.Compression),
			OriginalSize: originalSize,
			Checksum:     checksum,
		})
		off = end
	}
	return chunks, nil
}
