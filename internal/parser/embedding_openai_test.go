package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upskill-agent-go/internal/config"
)

func embedderConfig(baseURL string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "test-embedding-model",
		Dimensions: 4,
	}
}

func TestEmbedStrings_Batch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embedding-model", req.Model)
		assert.Equal(t, 4, req.Dimensions)

		// 故意乱序返回，验证按index归位
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float64{0.5, 0.6, 0.7, 0.8}},
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2, 0.3, 0.4}},
			},
			"model": "test-embedding-model",
			"usage": map[string]int{"prompt_tokens": 8, "total_tokens": 8},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(embedderConfig(server.URL))
	require.NoError(t, err)

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"first text", "second text"})
	require.NoError(t, err)

	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, vectors[0], "第一个向量应对应第一个文本")
	assert.Equal(t, []float64{0.5, 0.6, 0.7, 0.8}, vectors[1], "乱序响应应按index归位")
}

func TestEmbedStrings_EmptyInput(t *testing.T) {
	embedder, err := NewOpenAIEmbedder(embedderConfig("http://unused"))
	require.NoError(t, err)

	vectors, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err, "空输入不应发起请求")
	assert.Empty(t, vectors)
}

func TestEmbedStrings_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float64{0.1}},
			},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(embedderConfig(server.URL))
	require.NoError(t, err)

	_, err = embedder.EmbedStrings(context.Background(), []string{"a", "b"})
	require.Error(t, err, "向量数与文本数不一致应报错")
}

func TestEmbedStrings_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "invalid api key", "type": "auth_error"}`))
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(embedderConfig(server.URL))
	require.NoError(t, err)

	_, err = embedder.EmbedStrings(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestNewOpenAIEmbedder_Validation(t *testing.T) {
	cfg := embedderConfig("http://x")

	bad := cfg
	bad.APIKey = ""
	_, err := NewOpenAIEmbedder(bad)
	assert.Error(t, err, "空API密钥应报错")

	bad = cfg
	bad.Model = ""
	_, err = NewOpenAIEmbedder(bad)
	assert.Error(t, err, "空模型名应报错")

	bad = cfg
	bad.BaseURL = ""
	_, err = NewOpenAIEmbedder(bad)
	assert.Error(t, err, "空端点应报错")
}
