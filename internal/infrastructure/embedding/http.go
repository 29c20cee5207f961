// Package embedding provides the Embedder implementations: an HTTP client
// for OpenAI-compatible /embeddings endpoints and a deterministic local
// feature-hashing embedder.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const (
	DefaultTimeout = 15 * time.Second
	// maxErrorBody bounds how much of an error response is kept as detail.
	maxErrorBody = 512
)

// HTTPConfig configures HTTPEmbedder.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Dimension, when set, is checked against every returned vector.
	Dimension int
	Timeout   time.Duration
}

// HTTPEmbedder calls POST {BaseURL}/embeddings.
type HTTPEmbedder struct {
	cfg    HTTPConfig
	client *http.Client
	logger logging.Logger
}

var _ priorart.Embedder = (*HTTPEmbedder)(nil)

func NewHTTPEmbedder(cfg HTTPConfig, logger logging.Logger) (*HTTPEmbedder, error) {
	var v []errors.FieldViolation
	if cfg.BaseURL == "" {
		v = append(v, errors.FieldViolation{Field: "base_url", Message: "is required"})
	}
	if cfg.Model == "" {
		v = append(v, errors.FieldViolation{Field: "model", Message: "is required"})
	}
	if cfg.Dimension < 0 {
		v = append(v, errors.FieldViolation{Field: "dimension", Message: "must be >= 0"})
	}
	if len(v) > 0 {
		return nil, errors.NewValidationError("invalid embedding configuration", v)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &HTTPEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns the provider's vector for text. Every failure other than an
// empty input is reported as ErrCodeEmbeddingUnavailable.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "cannot embed empty text")
	}
	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: text})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingUnavailable, "failed to build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingUnavailable, "embedding request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.New(errors.ErrCodeEmbeddingUnavailable, "embedding provider returned an error").
			WithDetail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingUnavailable, "failed to decode embedding response")
	}
	if out.Error != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingUnavailable, "embedding provider returned an error").
			WithDetail(out.Error.Type + ": " + out.Error.Message)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingUnavailable, "embedding response has no vector")
	}
	vec := out.Data[0].Embedding
	if e.cfg.Dimension > 0 && len(vec) != e.cfg.Dimension {
		return nil, errors.New(errors.ErrCodeEmbeddingUnavailable, "embedding has wrong dimension").
			WithDetail(fmt.Sprintf("got %d, want %d", len(vec), e.cfg.Dimension))
	}

	e.logger.Debug("text embedded",
		logging.String("model", e.cfg.Model),
		logging.Int("dimension", len(vec)),
		logging.Duration("took", time.Since(start)))
	return vec, nil
}
