package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const DefaultHashingDimension = 512

// HashingEmbedder maps text to a signed feature-hashed bag of unigrams and
// bigrams, L2-normalised. Identical text yields cosine 1.0.
type HashingEmbedder struct {
	dim int
}

var _ priorart.Embedder = (*HashingEmbedder)(nil)

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &HashingEmbedder{dim: dim}
}

func (h *HashingEmbedder) Dimension() int { return h.dim }

// Embed never fails; empty text yields the zero vector.
func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok)
		}
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, x := range vec {
		out[i] = float32(x / norm)
	}
	return out, nil
}

func (h *HashingEmbedder) add(vec []float64, feature string) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := sum % uint64(h.dim)
	if sum>>63 == 1 {
		vec[idx]--
		return
	}
	vec[idx]++
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
