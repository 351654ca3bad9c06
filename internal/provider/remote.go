package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultPoolSize    = 4
	defaultIdleTimeout = 10 * time.Second
)

func newPooledClient(poolSize int) (*http.Client, *http.Transport) {
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     defaultIdleTimeout,
	}
	// No static Client.Timeout: each call carries its own context
	// deadline so a slow batch doesn't fail a subsequent fast one.
	return &http.Client{Transport: transport}, transport
}

// RemoteEmbeddingConfig configures a RemoteEmbeddingProvider.
type RemoteEmbeddingConfig struct {
	Endpoint   string
	Model      string
	Dimensions int
	Timeout    time.Duration
	PoolSize   int
}

// RemoteEmbeddingProvider calls an HTTP endpoint implementing spec.md
// §6's embedding contract: POST {model, texts} -> {vectors}.
type RemoteEmbeddingProvider struct {
	client    *http.Client
	transport *http.Transport
	endpoint  string
	model     string
	dims      int
	timeout   time.Duration
	retry     retryConfig
}

var _ EmbeddingProvider = (*RemoteEmbeddingProvider)(nil)

func NewRemoteEmbeddingProvider(cfg RemoteEmbeddingConfig) *RemoteEmbeddingProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client, transport := newPooledClient(cfg.PoolSize)
	return &RemoteEmbeddingProvider{
		client:    client,
		transport: transport,
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		timeout:   timeout,
		retry:     defaultRetryConfig(),
	}
}

type embedRequest struct {
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

func (r *RemoteEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out embedResponse
	err := withRetry(ctx, r.retry, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		body, err := json.Marshal(embedRequest{Model: r.model, Texts: texts})
		if err != nil {
			return fmt.Errorf("encode embed request: %w", err)
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("embed request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("embed provider returned %d: %s", resp.StatusCode, string(msg))
		}
		out = embedResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode embed response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.dims == 0 && len(out.Vectors) > 0 {
		r.dims = len(out.Vectors[0])
	}
	return out.Vectors, nil
}

func (r *RemoteEmbeddingProvider) Dimensions() int { return r.dims }

func (r *RemoteEmbeddingProvider) Close() error {
	r.transport.CloseIdleConnections()
	return nil
}

// RemoteLLMConfig configures a RemoteLLMProvider.
type RemoteLLMConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	PoolSize int
}

// RemoteLLMProvider calls an HTTP endpoint implementing spec.md §6's LLM
// contract: POST {model, prompt} -> {label, confidence, rationale?}.
type RemoteLLMProvider struct {
	client    *http.Client
	transport *http.Transport
	endpoint  string
	model     string
	timeout   time.Duration
	retry     retryConfig
}

var _ LLMProvider = (*RemoteLLMProvider)(nil)

func NewRemoteLLMProvider(cfg RemoteLLMConfig) *RemoteLLMProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client, transport := newPooledClient(cfg.PoolSize)
	return &RemoteLLMProvider{
		client:    client,
		transport: transport,
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		timeout:   timeout,
		retry:     defaultRetryConfig(),
	}
}

type classifyRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

func (r *RemoteLLMProvider) Classify(ctx context.Context, prompt string) (LLMResult, error) {
	var out classifyResponse
	err := withRetry(ctx, r.retry, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		body, err := json.Marshal(classifyRequest{Model: r.model, Prompt: prompt})
		if err != nil {
			return fmt.Errorf("encode classify request: %w", err)
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build classify request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("classify request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("llm provider returned %d: %s", resp.StatusCode, string(msg))
		}
		out = classifyResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode classify response: %w", err)
		}
		return nil
	})
	if err != nil {
		return LLMResult{}, err
	}
	return LLMResult{Label: out.Label, Confidence: out.Confidence, Rationale: out.Rationale}, nil
}

func (r *RemoteLLMProvider) Close() error {
	r.transport.CloseIdleConnections()
	return nil
}
