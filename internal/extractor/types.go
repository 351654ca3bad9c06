// Package extractor turns a dirty file into MIME type, chunks, and
// metadata, per spec.md §4.2. It consumes the store's dirty queue and
// diffs each file's chunk set rather than recomputing it from scratch.
package extractor

import "context"

// Family buckets a detected MIME type into the parser capability that
// handles it.
type Family string

const (
	FamilyTexty   Family = "texty"
	FamilyPDF     Family = "pdf"
	FamilyOffice  Family = "office"
	FamilyImage   Family = "image"
	FamilyUnknown Family = "unknown"
)

// Options tunes extraction behavior (spec.md §4.2, mirrored in
// config.ExtractionConfig).
type Options struct {
	// ChunkTargetBytes is the target chunk size for texty content.
	ChunkTargetBytes int
	// TextyReadCapBytes bounds how much of a texty file is read before
	// chunking (default 64 KiB per SPEC_FULL §5.2).
	TextyReadCapBytes int
	// ByteCap is the extraction byte cap (default 10 MiB); non-texty
	// files larger than this yield no chunks.
	ByteCap int64
	// OCREnabled, when true and an OCR capability is wired, runs OCR on
	// images up to OCRByteCap bytes.
	OCREnabled bool
	OCRByteCap int64
}

// DefaultOptions matches config.NewConfig()'s extraction defaults.
func DefaultOptions() Options {
	return Options{
		ChunkTargetBytes:  2048,
		TextyReadCapBytes: 64 * 1024,
		ByteCap:           10 * 1024 * 1024,
		OCREnabled:        false,
		OCRByteCap:        1024 * 1024,
	}
}

// TextChunk is a bounded byte-range slice of extracted text, prior to
// content-hashing into a store.Chunk.
type TextChunk struct {
	Start uint64
	End   uint64
	Text  string
}

// ImageInfo is the metadata recorded for the Image MIME family.
type ImageInfo struct {
	Width  int
	Height int
	Format string
	OCR    string
}

// OCR is a pluggable capability for extracting text from image bytes. No
// OCR library appears anywhere in the example pack, so the only shipped
// implementation is NoopOCR; a real backend implements the same interface.
type OCR interface {
	Recognize(ctx context.Context, content []byte) (string, error)
}

// NoopOCR always returns no text, matching the spec's "if unavailable,
// produce no chunks" capability-gating rule for the Image family.
type NoopOCR struct{}

func (NoopOCR) Recognize(ctx context.Context, content []byte) (string, error) {
	return "", nil
}

// Result summarizes one file's extraction pass.
type Result struct {
	Path        string
	Skipped     bool // hash unchanged, no work done
	MIME        string
	Family      Family
	ChunksAdded int
	ChunksKept  int
	ChunksDropped int
}
