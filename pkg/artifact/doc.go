/*
Package artifact implements the content-addressed artifact cache and
chunked transfer (C8). Cache negotiates ArtifactCacheQuery/Response pairs
against a bounded hashicorp/golang-lru store keyed by artifact id.
Assembler reassembles an in-order protocol.ArtifactChunk stream, verifying
a SHA-256 checksum over the decompressed bytes on completion; a mismatch
or out-of-order chunk discards the transfer as corrupt. Compress/
Decompress support the GZIP (compress/gzip) and ZSTD
(github.com/klauspost/compress/zstd) compression kinds named in the wire
protocol.
*/
package artifact
