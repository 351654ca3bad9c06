// Package pipeline wires the engine's domain stages into the end-to-end
// flow spec.md §2 names: Scanner → dirty queue → Extractor → chunks →
// Embedder → vector store; Classifier → tags; Suggester → planned
// actions; Apply → executed actions. It also exposes the watcher's
// single-file short-circuit (spec.md §4.8).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fileorg/organizer/internal/action"
	"github.com/fileorg/organizer/internal/classifier"
	"github.com/fileorg/organizer/internal/embed"
	"github.com/fileorg/organizer/internal/extractor"
	"github.com/fileorg/organizer/internal/scanner"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/suggester"
)

// Dependencies are the already-constructed domain components a Pipeline
// drives. Every field except Applier is required; a nil Applier disables
// the apply phase of Run (callers that only want the indexing half, e.g.
// a read-only search server, can omit it).
type Dependencies struct {
	Store      *store.Store
	Scanner    *scanner.Scanner
	Extractor  *extractor.Extractor
	Embedder   *embed.Embedder
	Classifier *classifier.Classifier
	Suggester  *suggester.Suggester
	Applier    *action.Applier
	Logger     *slog.Logger
}

// Pipeline runs the engine's stages in spec.md §2's order.
type Pipeline struct {
	deps Dependencies
	log  *slog.Logger
}

// New validates deps and returns a Pipeline. Applier may be nil.
func New(deps Dependencies) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline: Store is required")
	case deps.Scanner == nil:
		return nil, fmt.Errorf("pipeline: Scanner is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("pipeline: Extractor is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("pipeline: Embedder is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("pipeline: Classifier is required")
	case deps.Suggester == nil:
		return nil, fmt.Errorf("pipeline: Suggester is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, log: logger}, nil
}

// Result tallies one Run's per-stage counts.
type Result struct {
	ScannedFiles    int
	ScanErrors      int
	ExtractedFiles  int
	EmbeddedChunks  int
	ClassifiedFiles int
	SuggestedCount  int
	ApplySummary    action.Summary
}

// Run drives a full cycle: scan every configured root (upserting each
// item and marking changed paths dirty with reason="rescan"), then drain
// the dirty queue through extraction, embed whatever chunks the vector
// store is missing, classify untagged files, evaluate rules into
// planned actions, and — when an Applier is wired — apply them.
func (p *Pipeline) Run(ctx context.Context, opts scanner.Options) (Result, error) {
	var res Result

	scanned, err := p.runScan(ctx, opts)
	if err != nil {
		return res, fmt.Errorf("pipeline: scan: %w", err)
	}
	res.ScannedFiles, res.ScanErrors = scanned.files, scanned.errors

	extracted, err := p.deps.Extractor.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("pipeline: extract: %w", err)
	}
	res.ExtractedFiles = extracted

	embedded, err := p.deps.Embedder.Run(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("pipeline: embed: %w", err)
	}
	res.EmbeddedChunks = embedded

	classified, err := p.deps.Classifier.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("pipeline: classify: %w", err)
	}
	res.ClassifiedFiles = classified

	suggested, err := p.deps.Suggester.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("pipeline: suggest: %w", err)
	}
	res.SuggestedCount = suggested

	if p.deps.Applier != nil {
		summary, err := p.deps.Applier.Run(ctx, nil)
		if err != nil {
			return res, fmt.Errorf("pipeline: apply: %w", err)
		}
		res.ApplySummary = summary
	}

	return res, nil
}

type scanCounts struct{ files, errors int }

// runScan drains the scanner's result channel, upserting every item and
// marking changed paths dirty with reason="rescan" (spec.md §4.1). Per-item
// scan errors are logged and counted, never fatal to the pass.
func (p *Pipeline) runScan(ctx context.Context, opts scanner.Options) (scanCounts, error) {
	var counts scanCounts

	results, err := p.deps.Scanner.Scan(ctx, opts)
	if err != nil {
		return counts, err
	}

	for result := range results {
		if result.Error != nil {
			p.log.Warn("pipeline: scan error", "error", result.Error)
			counts.errors++
			continue
		}
		item := result.Item
		upsert, err := p.deps.Store.UpsertFile(ctx, store.ScanUpsert{
			Path:       item.Path,
			Size:       item.Size,
			ModTime:    unixNanoToTime(item.ModTime),
			CTime:      unixNanoToTime(item.CTime),
			Hash:       item.Hash,
			HashIsFull: item.HashIsFull,
		})
		if err != nil {
			p.log.Warn("pipeline: upsert failed", "path", item.Path, "error", err)
			counts.errors++
			continue
		}
		counts.files++
		if upsert.Created || upsert.Changed {
			if err := p.deps.Store.MarkDirty(ctx, item.Path, "rescan"); err != nil {
				p.log.Warn("pipeline: mark dirty failed", "path", item.Path, "error", err)
			}
		}
	}
	return counts, nil
}

// ProcessSingleFile drives the watcher's single-file short-circuit (spec.md
// §4.8): stat the path and upsert its file row (size and mtime, with the
// mtime also used as ctime; no hash is computed here), extract it, embed
// this file's chunks, run a classification pass over all untagged files,
// then mark the path dirty with reason "watch". The extractor's own
// fast-hash comparison is what actually implements the "skip if hash
// unchanged" short-circuit.
func (p *Pipeline) ProcessSingleFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("pipeline: stat %s: %w", path, err)
	}
	if _, err := p.deps.Store.UpsertFile(ctx, store.ScanUpsert{
		Path: path, Size: info.Size(), ModTime: info.ModTime(), CTime: info.ModTime(),
	}); err != nil {
		return fmt.Errorf("pipeline: upsert %s: %w", path, err)
	}

	if _, err := p.deps.Extractor.ProcessPath(ctx, path); err != nil {
		return fmt.Errorf("pipeline: extract %s: %w", path, err)
	}

	f, ok, err := p.deps.Store.GetFileByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("pipeline: lookup %s: %w", path, err)
	}
	if !ok {
		return nil
	}

	if _, err := p.deps.Embedder.Run(ctx, []int64{f.ID}); err != nil {
		return fmt.Errorf("pipeline: embed %s: %w", path, err)
	}
	if _, err := p.deps.Classifier.Run(ctx); err != nil {
		return fmt.Errorf("pipeline: classify %s: %w", path, err)
	}
	if err := p.deps.Store.MarkDirty(ctx, path, "watch"); err != nil {
		return fmt.Errorf("pipeline: mark dirty %s: %w", path, err)
	}
	return nil
}
