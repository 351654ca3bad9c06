// Package hashing computes BLAKE3 content hashes used to detect file
// changes between scan passes and to give chunks a stable content-addressed
// identity.
package hashing

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// FastHashBytes is the number of leading bytes read for a fast hash.
const FastHashBytes = 64 * 1024

// bufferPoolSize bounds the scratch buffer used for streaming reads.
const bufferPoolSize = 256 * 1024

// FastHash hashes the first FastHashBytes of the file at path (or the whole
// file if it is smaller). It is cheap enough to run on every scan pass and
// is used to short-circuit unchanged files before paying for a full hash.
func FastHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New(32, nil)
	if _, err := io.CopyN(h, f, FastHashBytes); err != nil && err != io.EOF {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FullHash hashes the entire contents of the file at path.
func FullHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New(32, nil)
	buf := make([]byte, bufferPoolSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChunkID computes the content-addressed identity of a chunk:
// BLAKE3(u64_le(start) || u64_le(end) || bytes). Two chunks with identical
// byte ranges and content always produce the same ID, which the embedder
// uses to detect chunks that already have an up-to-date vector.
func ChunkID(start, end uint64, content []byte) string {
	h := blake3.New(32, nil)
	var lenBuf [16]byte
	binary.LittleEndian.PutUint64(lenBuf[0:8], start)
	binary.LittleEndian.PutUint64(lenBuf[8:16], end)
	_, _ = h.Write(lenBuf[:])
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes hashes an in-memory byte slice directly, used for small payloads
// (e.g. rule file contents) where a file handle isn't available.
func Bytes(content []byte) string {
	h := blake3.New(32, nil)
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
