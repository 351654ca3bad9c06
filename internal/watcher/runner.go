package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fileorg/organizer/internal/keyword"
	"github.com/fileorg/organizer/internal/pipeline"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// RunnerDependencies are the already-constructed components Runner drives.
type RunnerDependencies struct {
	// Pipeline supplies the single-file short-circuit (scan → extract →
	// embed → classify for one path), spec.md §4.8.
	Pipeline *pipeline.Pipeline
	Store    *store.Store

	// Vectors has a gone file's chunk hashes deleted by ID when
	// ImmediateVectorDelete is set; nothing is deleted by file hash or
	// path. Defaults to vectorstore.Noop.
	Vectors vectorstore.VectorStore

	// Keyword is refreshed from the dirty queue after each batch. Nil
	// disables keyword-index maintenance (the search engine then falls
	// back to its DB LIKE path, spec.md §4.9).
	Keyword *keyword.Index

	Logger *slog.Logger
}

// RunnerConfig tunes Runner, mirroring config.WatcherConfig plus the
// watch-path resolution spec.md §6.3 (SUPPLEMENTED FEATURES) describes.
type RunnerConfig struct {
	// Paths are the roots to watch. Empty falls back to ScanIncludePaths;
	// an empty ScanIncludePaths falls back to the current directory.
	Paths            []string
	ScanIncludePaths []string

	// DebounceDelay is the minimum time between flushes (spec.md §4.8:
	// "configurable, minimum 200ms").
	DebounceDelay time.Duration

	// ImmediateVectorDelete purges a gone file's vectors as soon as its
	// batch is processed, rather than waiting for a later reconciliation.
	ImmediateVectorDelete bool
}

const minDebounceDelay = 200 * time.Millisecond

func (c RunnerConfig) resolvePaths() []string {
	if len(c.Paths) > 0 {
		return c.Paths
	}
	if len(c.ScanIncludePaths) > 0 {
		return c.ScanIncludePaths
	}
	return []string{"."}
}

// purgeSummary is what gets written to the batch's audit entry.
type purgeSummary struct {
	ProcessedPaths []string `json:"processed_paths"`
	GonePaths      []string `json:"gone_paths"`
	FileHashes     []string `json:"file_hashes"`
	ChunkHashes    []string `json:"chunk_hashes"`
	VectorDeleted  int      `json:"vector_ids_deleted"`
	KeywordDeleted int      `json:"keyword_docs_deleted"`
}

// Runner drives spec.md §4.8's watch loop: one HybridWatcher per resolved
// root, fanned into a single batch-processing loop. Live paths are driven
// through the single-file pipeline short-circuit; gone paths are purged
// from the relational store, the vector store, and the keyword index.
type Runner struct {
	deps     RunnerDependencies
	cfg      RunnerConfig
	log      *slog.Logger
	mu       sync.Mutex
	watchers []*HybridWatcher
}

// NewRunner validates deps and returns a Runner.
func NewRunner(deps RunnerDependencies, cfg RunnerConfig) (*Runner, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("watcher: Pipeline is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("watcher: Store is required")
	}
	if deps.Vectors == nil {
		deps.Vectors = vectorstore.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.DebounceDelay < minDebounceDelay {
		cfg.DebounceDelay = minDebounceDelay
	}
	return &Runner{deps: deps, cfg: cfg, log: deps.Logger}, nil
}

// Run starts a watcher per resolved root and processes debounced batches
// until ctx is cancelled or a watcher fails to start. It returns ctx.Err()
// on cancellation, or the first watcher start error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	paths := r.cfg.resolvePaths()
	opts := DefaultOptions()
	opts.DebounceWindow = r.cfg.DebounceDelay

	batches := make(chan []FileEvent)
	errCh := make(chan error, len(paths))
	var wg sync.WaitGroup

	for _, root := range paths {
		hw, err := NewHybridWatcher(opts)
		if err != nil {
			return fmt.Errorf("watcher: create watcher for %s: %w", root, err)
		}
		r.mu.Lock()
		r.watchers = append(r.watchers, hw)
		r.mu.Unlock()

		wg.Add(1)
		go func(root string, hw *HybridWatcher) {
			defer wg.Done()
			if err := hw.Start(ctx, root); err != nil && ctx.Err() == nil {
				select {
				case errCh <- fmt.Errorf("watcher: watch %s: %w", root, err):
				default:
				}
			}
		}(root, hw)

		wg.Add(1)
		go func(hw *HybridWatcher) {
			defer wg.Done()
			for events := range hw.Events() {
				select {
				case batches <- events:
				case <-ctx.Done():
					return
				}
			}
		}(hw)
	}

	go func() {
		wg.Wait()
		close(batches)
	}()

	for {
		select {
		case <-ctx.Done():
			r.stopAll()
			return ctx.Err()
		case err := <-errCh:
			r.stopAll()
			return err
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			r.processBatch(ctx, batch)
		}
	}
}

func (r *Runner) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, hw := range r.watchers {
		_ = hw.Stop()
	}
}

// processBatch implements spec.md §4.8 steps 3-4: drive the single-file
// pipeline for live paths, purge gone ones from every store, then refresh
// the keyword index from whatever the batch left dirty.
func (r *Runner) processBatch(ctx context.Context, events []FileEvent) {
	var summary purgeSummary

	for _, ev := range events {
		if ev.IsDir {
			continue
		}
		absPath := ev.Path
		if !filepath.IsAbs(absPath) {
			// HybridWatcher emits root-relative paths; Runner only sees
			// absolute ones from the scanner/store, so resolve against cwd
			// when the watcher didn't already hand back an absolute path.
			if abs, err := filepath.Abs(absPath); err == nil {
				absPath = abs
			}
		}

		if info, err := os.Stat(absPath); err == nil && !info.IsDir() {
			if err := r.deps.Pipeline.ProcessSingleFile(ctx, absPath); err != nil {
				r.log.Warn("watcher: single-file pipeline failed", "path", absPath, "error", err)
				continue
			}
			summary.ProcessedPaths = append(summary.ProcessedPaths, absPath)
			continue
		}

		purge, err := r.deps.Store.PurgeFile(ctx, absPath)
		if err != nil {
			r.log.Warn("watcher: purge failed", "path", absPath, "error", err)
			continue
		}
		if purge.FileID == 0 {
			continue
		}
		summary.GonePaths = append(summary.GonePaths, absPath)
		if purge.FileHash != "" {
			summary.FileHashes = append(summary.FileHashes, purge.FileHash)
		}
		summary.ChunkHashes = append(summary.ChunkHashes, purge.ChunkHashes...)

		if err := r.deps.Store.RecordAudit(ctx, nil, store.EventFilePurged, purge); err != nil {
			r.log.Warn("watcher: audit file_purged failed", "path", absPath, "error", err)
		}
	}

	if r.deps.Keyword != nil && len(summary.GonePaths) > 0 {
		if err := r.deps.Keyword.DeleteDocs(ctx, summary.GonePaths); err != nil {
			r.log.Warn("watcher: keyword delete failed", "error", err)
		} else {
			summary.KeywordDeleted = len(summary.GonePaths)
		}
	}

	if r.cfg.ImmediateVectorDelete && len(summary.ChunkHashes) > 0 {
		if err := r.deps.Vectors.Delete(ctx, summary.ChunkHashes); err != nil {
			r.log.Warn("watcher: vector delete failed", "error", err)
		} else {
			summary.VectorDeleted = len(summary.ChunkHashes)
		}
	}

	if r.deps.Keyword != nil {
		if _, err := keyword.Refresh(ctx, r.deps.Keyword, r.deps.Store); err != nil {
			r.log.Warn("watcher: keyword refresh failed", "error", err)
		}
	}

	if len(summary.ProcessedPaths) > 0 || len(summary.GonePaths) > 0 {
		if err := r.deps.Store.RecordAudit(ctx, nil, store.EventWatchPurge, summary); err != nil {
			r.log.Warn("watcher: audit watch_purge failed", "error", err)
		}
	}
}
