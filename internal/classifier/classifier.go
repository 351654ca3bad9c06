// Package classifier assigns a label to each untagged file by working
// down spec.md §4.4's decision chain: a fixed heuristic table, then (when
// enabled) kNN over embedded chunk vectors, then an LLM fallback, landing
// on "unknown" if nothing clears the acceptance threshold.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fileorg/organizer/internal/provider"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// acceptanceThreshold is the confidence a classification outcome must
// exceed to be persisted, per spec.md §4.4 step 5; an outcome at or below
// it is not written at all, so the file stays untagged. It is independent
// of the heuristic and kNN tier thresholds, which are operator-tunable via
// Config.
const acceptanceThreshold = 0.5

// defaultKNNNeighbors is used when Config.KNNNeighbors is unset.
const defaultKNNNeighbors = 5

// Config tunes the decision chain. Its fields correspond to part of
// internal/config's ClassificationConfig under different names, so callers
// copy the values across field by field.
type Config struct {
	HeuristicConfidence    float64
	KNNNeighbors           int
	KNNConfidenceThreshold float64
	LLMEnabled             bool
}

// Outcome is one file's classification result.
type Outcome struct {
	FileID     int64
	Label      string
	Confidence float64
	Tier       string // "heuristic", "knn", "llm", or "unknown"
}

// Classifier runs spec.md §4.4's per-file classification pass.
type Classifier struct {
	store   *store.Store
	vectors vectorstore.VectorStore
	llm     provider.LLMProvider
	cfg     Config
	logger  *slog.Logger
}

func New(s *store.Store, vs vectorstore.VectorStore, llm provider.LLMProvider, cfg Config, logger *slog.Logger) *Classifier {
	if cfg.KNNNeighbors <= 0 {
		cfg.KNNNeighbors = defaultKNNNeighbors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{store: s, vectors: vs, llm: llm, cfg: cfg, logger: logger}
}

// Run classifies every file that has no tag yet and returns how many
// files were tagged with something other than "unknown".
func (c *Classifier) Run(ctx context.Context) (int, error) {
	files, err := c.store.ListUntaggedFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("classifier: list untagged files: %w", err)
	}

	tagged := 0
	for _, f := range files {
		outcome, err := c.classifyFile(ctx, f)
		if err != nil {
			c.logger.Warn("classifier: skipping file", "file_id", f.ID, "path", f.Path, "error", err)
			continue
		}
		if outcome.Confidence <= acceptanceThreshold {
			continue
		}
		if err := c.persist(ctx, outcome); err != nil {
			c.logger.Warn("classifier: persist failed", "file_id", f.ID, "error", err)
			continue
		}
		tagged++
	}
	return tagged, nil
}

func (c *Classifier) classifyFile(ctx context.Context, f store.File) (Outcome, error) {
	if label := heuristicLabel(f.Path, f.MIME, f.Extension); label != "" {
		confidence := c.cfg.HeuristicConfidence
		if confidence <= 0 {
			confidence = 0.9
		}
		return Outcome{FileID: f.ID, Label: label, Confidence: confidence, Tier: "heuristic"}, nil
	}

	chunks, err := c.store.GetChunksByFile(ctx, f.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get chunks: %w", err)
	}
	chunkIDs := make([]string, len(chunks))
	var textParts []string
	for i, ch := range chunks {
		chunkIDs[i] = ch.Hash
		textParts = append(textParts, ch.TextPreview)
	}

	if _, noop := c.vectors.(vectorstore.Noop); !noop {
		candidates, err := aggregateKNN(ctx, c.store, c.vectors, f.ID, chunkIDs, c.cfg.KNNNeighbors)
		if err != nil {
			c.logger.Warn("classifier: knn aggregation failed", "file_id", f.ID, "error", err)
		} else if len(candidates) > 0 {
			threshold := c.cfg.KNNConfidenceThreshold
			if threshold <= 0 {
				threshold = 0.7
			}
			if candidates[0].Score > threshold {
				return Outcome{FileID: f.ID, Label: candidates[0].Label, Confidence: candidates[0].Score, Tier: "knn"}, nil
			}
		}
	}

	if c.cfg.LLMEnabled {
		if _, noop := c.llm.(provider.NoopLLMProvider); !noop {
			prompt := buildLLMPrompt(f, textParts)
			result, err := c.llm.Classify(ctx, prompt)
			if err != nil {
				c.logger.Warn("classifier: llm call failed", "file_id", f.ID, "error", err)
			} else if result.Label != "" {
				return Outcome{FileID: f.ID, Label: result.Label, Confidence: float64(result.Confidence), Tier: "llm"}, nil
			}
		}
	}

	return Outcome{FileID: f.ID, Label: "unknown", Confidence: 0, Tier: "unknown"}, nil
}

func buildLLMPrompt(f store.File, chunkTexts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify the file with metadata {path: %q, mime: %q, ext: %q}. Text:\n", f.Path, f.MIME, f.Extension)
	b.WriteString(strings.Join(chunkTexts, "\n"))
	return b.String()
}

// persist writes the tag inside the single transaction spec.md §4.4 step
// 5 requires: insert-or-ignore the tag, insert-or-ignore the file_tag row
// with source "classifier".
func (c *Classifier) persist(ctx context.Context, o Outcome) error {
	return c.store.TagFile(ctx, o.FileID, o.Label, o.Confidence, store.TagSourceClassifier)
}
