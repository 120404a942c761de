package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upskill-agent-go/internal/config"
	"upskill-agent-go/internal/types"
)

const testCollection = "test-jobs"

// newQdrantServer 起一个模拟Qdrant的httptest服务，集合已存在且维度为4
func newQdrantServer(t *testing.T, extra func(mux *http.ServeMux)) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/"+testCollection, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"config": map[string]interface{}{
					"params": map[string]interface{}{
						"vectors": map[string]interface{}{"size": 4, "distance": "Cosine"},
					},
				},
			},
			"status": "ok",
		})
	})
	if extra != nil {
		extra(mux)
	}
	return httptest.NewServer(mux)
}

func qdrantConfig(endpoint string) *config.QdrantConfig {
	return &config.QdrantConfig{
		Endpoint:   endpoint,
		Collection: testCollection,
		Dimension:  4,
	}
}

func sampleChunks() []types.JobChunk {
	return []types.JobChunk{
		{
			ChunkID:    "abc123",
			JobID:      "job-1",
			Title:      "Backend Engineer",
			Category:   "IT",
			Text:       "Job Title: Backend Engineer\nDescription: builds APIs",
			ChunkIndex: 0,
			WordCount:  3,
		},
	}
}

func TestNewQdrant_ExistingCollection(t *testing.T) {
	server := newQdrantServer(t, nil)
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err, "配置与现有集合一致时应创建成功")
	assert.NotNil(t, q)
}

func TestNewQdrant_CreatesMissingCollection(t *testing.T) {
	var createBody map[string]interface{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/"+testCollection, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("PUT /collections/"+testCollection, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": true, "status": "ok"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err, "集合不存在时应自动创建")

	require.NotNil(t, createBody, "应发起创建集合请求")
	vectors := createBody["vectors"].(map[string]interface{})
	assert.EqualValues(t, 4, vectors["size"], "创建集合应使用配置维度")
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestNewQdrant_DimensionMismatchRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/"+testCollection, func(w http.ResponseWriter, r *http.Request) {
		// 现有集合是768维，配置是4维
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"config": map[string]interface{}{
					"params": map[string]interface{}{
						"vectors": map[string]interface{}{"size": 768, "distance": "Cosine"},
					},
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := NewQdrant(qdrantConfig(server.URL))
	require.Error(t, err, "维度不匹配必须拒绝启动，否则检索会静默失真")
	assert.Contains(t, err.Error(), "不匹配")
}

func TestNewQdrant_Validation(t *testing.T) {
	_, err := NewQdrant(nil)
	assert.Error(t, err, "nil配置应报错")

	_, err = NewQdrant(&config.QdrantConfig{Endpoint: "http://x", Collection: "c", Dimension: 0})
	assert.Error(t, err, "非正维度应报错")
}

func TestUpsertJobChunks_PointConstruction(t *testing.T) {
	var upsertBody struct {
		Points []struct {
			ID      string                 `json:"id"`
			Vector  []float64              `json:"vector"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"points"`
	}

	server := newQdrantServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("PUT /collections/"+testCollection+"/points", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "true", r.URL.Query().Get("wait"), "upsert应等待写入完成")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upsertBody))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"result": map[string]string{"status": "completed"}, "status": "ok",
			})
		})
	})
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	ids, err := q.UpsertJobChunks(context.Background(), sampleChunks(), [][]float64{{0.1, 0.2, 0.3, 0.4}})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// 点ID应由分块内容确定性派生
	wantID := uuid.NewV5(QdrantPointIDNamespace, "job_chunk:abc123").String()
	assert.Equal(t, wantID, ids[0], "相同分块内容应映射到相同点ID")

	require.Len(t, upsertBody.Points, 1)
	point := upsertBody.Points[0]
	assert.Equal(t, wantID, point.ID)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, point.Vector)
	assert.Equal(t, "abc123", point.Payload["chunk_id"])
	assert.Equal(t, "Backend Engineer", point.Payload["title"])
	assert.Equal(t, "IT", point.Payload["category"])
	assert.Equal(t, "job_posting", point.Payload["source"])
	assert.Contains(t, point.Payload["text"], "builds APIs")
}

func TestUpsertJobChunks_CountMismatch(t *testing.T) {
	server := newQdrantServer(t, nil)
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	_, err = q.UpsertJobChunks(context.Background(), sampleChunks(), [][]float64{{0.1, 0.2, 0.3, 0.4}, {0.5, 0.6, 0.7, 0.8}})
	require.Error(t, err, "分块数与向量数不一致应报错")
}

func TestUpsertJobChunks_DimensionMismatch(t *testing.T) {
	server := newQdrantServer(t, nil)
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	_, err = q.UpsertJobChunks(context.Background(), sampleChunks(), [][]float64{{0.1, 0.2}})
	require.Error(t, err, "向量维度与集合维度不一致应报错")
}

func TestUpsertJobChunks_EmptyInput(t *testing.T) {
	server := newQdrantServer(t, nil)
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	ids, err := q.UpsertJobChunks(context.Background(), nil, nil)
	require.NoError(t, err, "空输入不应发起请求")
	assert.Empty(t, ids)
}

func TestSearchSimilarJobs_MapsResults(t *testing.T) {
	var searchBody map[string]interface{}

	server := newQdrantServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("POST /collections/"+testCollection+"/points/search", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&searchBody))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]interface{}{
					{"id": "p1", "score": 0.93, "payload": map[string]interface{}{"text": "chunk one", "title": "Dev"}},
					{"id": "p2", "score": 0.81, "payload": map[string]interface{}{"text": "chunk two"}},
				},
				"status": "ok",
			})
		})
	})
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	results, err := q.SearchSimilarJobs(context.Background(), []float64{0.1, 0.2, 0.3, 0.4}, 5, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 5, searchBody["limit"])
	assert.Equal(t, true, searchBody["with_payload"], "检索必须带payload")
	_, hasFilter := searchBody["filter"]
	assert.False(t, hasFilter, "未指定过滤条件时不应发送filter")

	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ID)
	assert.InDelta(t, 0.93, results[0].Score, 0.001)
	assert.Equal(t, "chunk one", results[0].Payload["text"])
	assert.Equal(t, "Dev", results[0].Payload["title"])
}

func TestSearchSimilarJobs_QueryDimensionMismatch(t *testing.T) {
	server := newQdrantServer(t, nil)
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	_, err = q.SearchSimilarJobs(context.Background(), []float64{0.1, 0.2}, 5, nil)
	require.Error(t, err, "查询向量维度不匹配应报错而不是发请求")
}

func TestCountPoints(t *testing.T) {
	server := newQdrantServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("POST /collections/"+testCollection+"/points/count", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, true, body["exact"], "计数应使用精确模式")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"result": map[string]int64{"count": 42}, "status": "ok",
			})
		})
	})
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	count, err := q.CountPoints(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, count)
}

func TestDeletePoints_EmptyIsNoop(t *testing.T) {
	server := newQdrantServer(t, nil)
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	assert.NoError(t, q.DeletePoints(context.Background(), nil), "空ID列表应直接返回")
}

func TestQdrant_APIKeyHeader(t *testing.T) {
	var gotKey string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/"+testCollection, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"config": map[string]interface{}{
					"params": map[string]interface{}{
						"vectors": map[string]interface{}{"size": 4, "distance": "Cosine"},
					},
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := qdrantConfig(server.URL)
	cfg.APIKey = "secret-key"
	_, err := NewQdrant(cfg)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", gotKey, "配置了API Key时每个请求都应携带")
}

func TestQdrant_ServerErrorSurfaced(t *testing.T) {
	server := newQdrantServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("POST /collections/"+testCollection+"/points/count", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status": {"error": "service unavailable"}}`)
		})
	})
	defer server.Close()

	q, err := NewQdrant(qdrantConfig(server.URL))
	require.NoError(t, err)

	_, err = q.CountPoints(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
