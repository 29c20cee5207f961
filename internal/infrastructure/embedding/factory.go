package embedding

import (
	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const (
	ProviderHTTP    = "http"
	ProviderHashing = "hashing"
)

// NewFromConfig builds the configured provider. An empty provider selects
// hashing.
func NewFromConfig(cfg config.EmbeddingConfig, logger logging.Logger) (priorart.Embedder, error) {
	switch cfg.Provider {
	case ProviderHTTP:
		return NewHTTPEmbedder(HTTPConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}, logger)
	case ProviderHashing, "":
		return NewHashingEmbedder(cfg.Dimension), nil
	default:
		return nil, errors.NewValidationError("invalid embedding configuration", []errors.FieldViolation{
			{Field: "provider", Message: "must be http or hashing"},
		})
	}
}
