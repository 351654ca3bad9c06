package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fileorg/organizer/internal/ferrors"
	"github.com/fileorg/organizer/internal/hashing"
	"github.com/fileorg/organizer/internal/store"
)

// Extractor consumes the dirty queue and turns each file into MIME type,
// chunks, and metadata (spec.md §4.2).
type Extractor struct {
	store  *store.Store
	opts   Options
	ocr    OCR
	logger *slog.Logger
}

// New constructs an Extractor. ocr may be nil (equivalent to NoopOCR).
func New(s *store.Store, opts Options, ocr OCR, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if ocr == nil {
		ocr = NoopOCR{}
	}
	return &Extractor{store: s, opts: opts, ocr: ocr, logger: logger}
}

// Run drains the dirty queue, processing each entry in turn. Per-file
// failures are logged and the entry is left dirty for the next pass; Run
// itself only returns an error for failures unrelated to any single file
// (e.g. the dirty-queue listing itself failing).
func (e *Extractor) Run(ctx context.Context) (int, error) {
	entries, err := e.store.ListDirty(ctx, 0)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}
		if _, err := e.ProcessPath(ctx, entry.Path); err != nil {
			e.logger.Warn("extractor: failed to process dirty file", "path", entry.Path, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// ProcessPath runs the extraction pipeline for a single path, used both by
// Run's dirty-queue drain and by the watcher's single-file short-circuit
// (spec.md §4.8).
func (e *Extractor) ProcessPath(ctx context.Context, path string) (Result, error) {
	f, ok, err := e.store.GetFileByPath(ctx, path)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ferrors.New(ferrors.CodeFileNotFound, "extractor: no file row for dirty path", nil).WithDetail("path", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, ferrors.Wrap(ferrors.CodeFileNotFound, err)
	}

	fastHash, err := hashing.FastHash(path)
	if err != nil {
		return Result{}, ferrors.Wrap(ferrors.CodeHashFailed, err)
	}
	if f.FastHash != "" && f.FastHash == fastHash {
		if err := e.store.ClearDirty(ctx, path); err != nil {
			return Result{}, err
		}
		return Result{Path: path, Skipped: true}, nil
	}

	head, err := readHead(path, sniffBytes)
	if err != nil {
		return Result{}, ferrors.Wrap(ferrors.CodeFilePermission, err)
	}
	mime := detectMIME(head, path)
	family := familyOf(mime)
	ext := filepath.Ext(path)

	byteCap := e.opts.ByteCap
	if byteCap <= 0 {
		byteCap = DefaultOptions().ByteCap
	}

	var text string
	var extractErr error
	switch family {
	case FamilyTexty:
		text, extractErr = readTexty(path, e.readCap())
	case FamilyPDF:
		if info.Size() <= byteCap {
			text, extractErr = extractPDFText(path)
		}
	case FamilyOffice:
		if info.Size() <= byteCap {
			text, extractErr = extractOfficeText(path, ext)
		}
	case FamilyImage:
		if info.Size() <= byteCap {
			img, imgErr := e.extractImage(ctx, path, info.Size())
			if imgErr == nil {
				if err := e.recordImageMetadata(ctx, f.ID, img); err != nil {
					return Result{}, err
				}
				text = img.OCR
			}
		}
	}
	if extractErr != nil {
		e.logger.Warn("extractor: parser capability failed, producing no chunks", "path", path, "family", family, "error", extractErr)
		text = ""
	}

	var chunks []store.Chunk
	for _, tc := range chunkText(text, e.targetBytes()) {
		chunks = append(chunks, store.Chunk{
			Hash:        hashing.ChunkID(tc.Start, tc.End, []byte(tc.Text)),
			Start:       tc.Start,
			End:         tc.End,
			TextPreview: preview(tc.Text),
		})
	}

	diff, err := e.store.ReplaceChunks(ctx, f.ID, chunks)
	if err != nil {
		return Result{}, err
	}

	if err := e.store.SetFileMIME(ctx, f.ID, mime); err != nil {
		return Result{}, err
	}
	if err := e.store.BackfillHash(ctx, f.ID, fastHash); err != nil {
		return Result{}, err
	}

	remaining, err := e.store.GetChunksByFile(ctx, f.ID)
	if err != nil {
		return Result{}, err
	}
	workDone := len(diff.Inserted) > 0 || len(diff.Deleted) > 0
	if workDone || len(remaining) > 0 {
		if err := e.store.ClearDirty(ctx, path); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Path:          path,
		MIME:          mime,
		Family:        family,
		ChunksAdded:   len(diff.Inserted),
		ChunksDropped: len(diff.Deleted),
		ChunksKept:    len(remaining) - len(diff.Inserted),
	}, nil
}

func (e *Extractor) targetBytes() int {
	if e.opts.ChunkTargetBytes > 0 {
		return e.opts.ChunkTargetBytes
	}
	return DefaultOptions().ChunkTargetBytes
}

func (e *Extractor) readCap() int64 {
	if e.opts.TextyReadCapBytes > 0 {
		return int64(e.opts.TextyReadCapBytes)
	}
	return int64(DefaultOptions().TextyReadCapBytes)
}

func (e *Extractor) recordImageMetadata(ctx context.Context, fileID int64, img ImageInfo) error {
	fields := map[string]string{
		"width":  fmt.Sprintf("%d", img.Width),
		"height": fmt.Sprintf("%d", img.Height),
		"format": img.Format,
	}
	for k, v := range fields {
		if err := e.store.UpsertMetadata(ctx, store.Metadata{FileID: fileID, Key: "image." + k, Value: v, Source: "image"}); err != nil {
			return err
		}
	}
	return nil
}

// readHead reads up to n bytes from the start of path.
func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:read], nil
}

// readTexty reads up to capBytes bytes of a texty file as UTF-8 text
// (lossy decoding is not attempted beyond what Go's string conversion
// already does; invalid byte sequences are preserved as-is in the
// returned string, matching the original's "lossy decode" behavior
// closely enough that replacement characters, not panics, are the worst
// case).
func readTexty(path string, capBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, capBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return string(buf[:n]), nil
}

// preview is the chunk's persisted text field. Chunks are already bounded
// to roughly chunkTargetBytes by chunkText, so text_preview holds the full
// chunk body — it is what both the embedder and the classifier's heuristic
// text input consume, not a separate summary.
func preview(text string) string {
	return text
}
