package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fileorg/organizer/internal/action"
	"github.com/fileorg/organizer/internal/classifier"
	"github.com/fileorg/organizer/internal/config"
	"github.com/fileorg/organizer/internal/embed"
	"github.com/fileorg/organizer/internal/extractor"
	"github.com/fileorg/organizer/internal/keyword"
	"github.com/fileorg/organizer/internal/pipeline"
	"github.com/fileorg/organizer/internal/provider"
	"github.com/fileorg/organizer/internal/scanner"
	"github.com/fileorg/organizer/internal/search"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/suggester"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// engine bundles every component a CLI command might drive, built once
// from the loaded Config. Commands use only the fields they need.
type engine struct {
	cfg     *config.Config
	store   *store.Store
	vectors vectorstore.VectorStore
	keyword *keyword.Index

	pipeline *pipeline.Pipeline
	search   *search.Engine
	applier  *action.Applier
	undoer   *action.Undoer

	closers []func() error
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

// buildEngine loads configPath (or the built-in defaults) and wires every
// component the CLI surface drives, grounded in config.Config's sections.
func buildEngine(logger *slog.Logger) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	s, err := store.Open(cfg.Store.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e := &engine{cfg: cfg, store: s}
	e.closers = append(e.closers, s.Close)

	e.vectors, err = newVectorStore(cfg.VectorStore, cfg.Embeddings.Dimensions)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	e.closers = append(e.closers, e.vectors.Close)

	embedProvider, err := newEmbeddingProvider(cfg.Embeddings)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}
	e.closers = append(e.closers, embedProvider.Close)

	llmProvider := newLLMProvider(cfg.Classification)
	e.closers = append(e.closers, llmProvider.Close)

	kwIndex, err := keyword.Open(cfg.Store.Dir, logger)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	e.keyword = kwIndex
	e.closers = append(e.closers, kwIndex.Close)

	sc, err := scanner.New()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("build scanner: %w", err)
	}

	ex := extractor.New(s, extractor.Options{
		ChunkTargetBytes:  cfg.Extraction.ChunkTargetBytes,
		TextyReadCapBytes: cfg.Extraction.TextyReadCapBytes,
		ByteCap:           int64(cfg.Extraction.ByteCapMB) * 1024 * 1024,
		OCREnabled:        cfg.Extraction.OCREnabled,
		OCRByteCap:        int64(cfg.Extraction.OCRByteCap),
	}, nil, logger)

	em := embed.New(s, e.vectors, embedProvider, embed.Options{BatchSize: cfg.Embeddings.BatchSize}, logger)

	cl := classifier.New(s, e.vectors, llmProvider, classifier.Config{
		HeuristicConfidence:    cfg.Classification.HeuristicConfidenceThreshold,
		KNNNeighbors:           cfg.Classification.KNNNeighbors,
		KNNConfidenceThreshold: cfg.Classification.KNNConfidenceThreshold,
		LLMEnabled:             cfg.Classification.LLMEnabled,
	}, logger)

	sg := suggester.New(s, suggester.DefaultOptions(), logger)

	e.applier = action.New(s, cfg.Apply, logger)
	e.undoer = action.NewUndoer(s, logger)

	// Applier is deliberately left unwired here: Run's apply phase is opt-in
	// per invocation (the "scan" command's --apply flag), driven directly
	// through e.applier rather than folded into every pipeline.Run call.
	e.pipeline, err = pipeline.New(pipeline.Dependencies{
		Store:      s,
		Scanner:    sc,
		Extractor:  ex,
		Embedder:   em,
		Classifier: cl,
		Suggester:  sg,
		Logger:     logger,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	e.search = search.New(s, e.vectors, embedProvider, kwIndex, logger)

	return e, nil
}

func newVectorStore(cfg config.VectorStoreConfig, dimensions int) (vectorstore.VectorStore, error) {
	switch cfg.Backend {
	case "", "noop":
		return vectorstore.Noop{}, nil
	case "qdrant":
		return vectorstore.NewQdrant(cfg.Endpoint, cfg.Collection, dimensions, cfg.Metric)
	default:
		return nil, fmt.Errorf("unknown vector_store.backend %q", cfg.Backend)
	}
}

func newEmbeddingProvider(cfg config.EmbeddingsConfig) (provider.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", "noop":
		return provider.NoopEmbeddingProvider{Dims: cfg.Dimensions}, nil
	case "remote":
		return provider.NewRemoteEmbeddingProvider(provider.RemoteEmbeddingConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    30 * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embeddings.provider %q", cfg.Provider)
	}
}

func newLLMProvider(cfg config.ClassificationConfig) provider.LLMProvider {
	if !cfg.LLMEnabled {
		return provider.NoopLLMProvider{}
	}
	return provider.NewRemoteLLMProvider(provider.RemoteLLMConfig{
		Endpoint: cfg.LLMEndpoint,
		Model:    cfg.LLMModel,
		Timeout:  30 * time.Second,
	})
}
