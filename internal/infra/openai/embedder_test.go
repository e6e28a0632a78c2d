package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

func embeddingHandler(t *testing.T, dimension int) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))

		var req struct {
			Model      string `json:"model"`
			Input      any    `json:"input"`
			Dimensions int    `json:"dimensions"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		inputs := 1
		if list, ok := req.Input.([]any); ok {
			inputs = len(list)
		}

		var data []string
		for i := range inputs {
			values := make([]string, dimension)
			for j := range values {
				values[j] = fmt.Sprintf("%d.5", i)
			}
			data = append(data, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%s]}`, i, strings.Join(values, ",")))
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":%q,"data":[%s],"usage":{"prompt_tokens":1,"total_tokens":1}}`,
			req.Model, strings.Join(data, ","))
	}
}

func TestNewEmbedder_OptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)

	require.NoError(t, err)
	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

func TestNewEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")

	assert.True(t, apperr.IsConfiguration(err))
}

func TestEmbedder_Embed(t *testing.T) {
	srv := newTestServer(t, embeddingHandler(t, 3))
	embedder, err := NewEmbedder("test-key",
		WithEmbeddingDimension(3),
		WithEmbeddingRequestOptions(option.WithBaseURL(srv.URL+"/")),
	)
	require.NoError(t, err)

	vector, err := embedder.Embed(context.Background(), "operating margin")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, vector)
}

func TestEmbedder_BatchEmbed_KeepsInputOrder(t *testing.T) {
	srv := newTestServer(t, embeddingHandler(t, 2))
	embedder, err := NewEmbedder("test-key",
		WithEmbeddingDimension(2),
		WithEmbeddingRequestOptions(option.WithBaseURL(srv.URL+"/")),
	)
	require.NoError(t, err)

	vectors, err := embedder.BatchEmbed(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{2.5, 2.5}, vectors[2])
}

func TestEmbedder_Embed_DimensionMismatchIsConfigError(t *testing.T) {
	srv := newTestServer(t, embeddingHandler(t, 4))
	embedder, err := NewEmbedder("test-key",
		WithEmbeddingDimension(3),
		WithEmbeddingRequestOptions(option.WithBaseURL(srv.URL+"/")),
	)
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "guidance")

	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestEmbedder_BatchEmbed_RejectsInvalidBatch(t *testing.T) {
	embedder, err := NewEmbedder("test-key")
	require.NoError(t, err)

	_, err = embedder.BatchEmbed(context.Background(), nil)
	assert.Error(t, err)

	_, err = embedder.BatchEmbed(context.Background(), make([]string, MaxBatchSize+1))
	assert.Error(t, err)
}
