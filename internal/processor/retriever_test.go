package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/storage"
	"upskill-agent-go/internal/types"
)

// capturingEmbedder 记录收到的文本，返回固定向量
type capturingEmbedder struct {
	gotTexts []string
	err      error
}

func (e *capturingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	e.gotTexts = append(e.gotTexts, texts...)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

func (e *capturingEmbedder) GetDimensions() int { return 4 }

// capturingVectorStore 记录检索参数
type capturingVectorStore struct {
	MockVectorStore
	gotVector []float64
	gotLimit  int
}

func (s *capturingVectorStore) SearchSimilarJobs(ctx context.Context, queryVector []float64, limit int, filter map[string]interface{}) ([]storage.SearchResult, error) {
	s.gotVector = queryVector
	s.gotLimit = limit
	return s.MockVectorStore.SearchSimilarJobs(ctx, queryVector, limit, filter)
}

func TestRetrieve_BuildsQueryFromProfile(t *testing.T) {
	embedder := &capturingEmbedder{}
	store := &capturingVectorStore{}

	retriever, err := NewJobRetriever(embedder, store, 7)
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), testProfile())
	require.NoError(t, err)

	require.Len(t, embedder.gotTexts, 1, "一次检索只应向量化一条查询文本")
	query := embedder.gotTexts[0]
	assert.Contains(t, query, "Target Job Role: Backend Engineer", "查询文本应包含目标岗位")
	assert.Contains(t, query, "Key Skills: Go", "查询文本应包含技能")

	assert.Equal(t, 7, store.gotLimit, "应按配置的topK检索")
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, store.gotVector)
}

func TestRetrieve_MapsPayloadFields(t *testing.T) {
	store := &capturingVectorStore{MockVectorStore: MockVectorStore{
		searchResults: []storage.SearchResult{
			{ID: "p1", Score: 0.95, Payload: map[string]interface{}{
				"text":  "Job Title: DevOps\nDescription: CI/CD pipelines",
				"title": "DevOps",
			}},
			{ID: "p2", Score: 0.80, Payload: map[string]interface{}{
				"title": "missing-text", // 缺text，应跳过
			}},
		},
	}}

	retriever, err := NewJobRetriever(&capturingEmbedder{}, store, 5)
	require.NoError(t, err)

	jobs, err := retriever.Retrieve(context.Background(), testProfile())
	require.NoError(t, err)

	require.Len(t, jobs, 1, "缺少text载荷的命中应被跳过")
	assert.Equal(t, "Job Title: DevOps\nDescription: CI/CD pipelines", jobs[0].Text)
	assert.Equal(t, "DevOps", jobs[0].Title)
	assert.InDelta(t, 0.95, jobs[0].Score, 0.001)
}

func TestRetrieve_EmptyCorpusReturnsEmpty(t *testing.T) {
	retriever, err := NewJobRetriever(&capturingEmbedder{}, &capturingVectorStore{}, 5)
	require.NoError(t, err)

	jobs, err := retriever.Retrieve(context.Background(), testProfile())
	require.NoError(t, err, "空语料库不是错误")
	assert.Empty(t, jobs)
}

func TestRetrieve_EmbedFailure(t *testing.T) {
	retriever, err := NewJobRetriever(
		&capturingEmbedder{err: errors.New("embedding api down")},
		&capturingVectorStore{}, 5)
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), testProfile())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "向量化失败")
}

func TestRetrieve_SearchFailure(t *testing.T) {
	store := &capturingVectorStore{MockVectorStore: MockVectorStore{searchErr: errors.New("qdrant 503")}}
	retriever, err := NewJobRetriever(&capturingEmbedder{}, store, 5)
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), testProfile())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "检索失败")
}

func TestRetrieve_NilProfile(t *testing.T) {
	retriever, err := NewJobRetriever(&capturingEmbedder{}, &capturingVectorStore{}, 5)
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewJobRetriever_Defaults(t *testing.T) {
	_, err := NewJobRetriever(nil, &capturingVectorStore{}, 5)
	assert.Error(t, err, "nil embedder应报错")

	_, err = NewJobRetriever(&capturingEmbedder{}, nil, 5)
	assert.Error(t, err, "nil vectorStore应报错")

	retriever, err := NewJobRetriever(&capturingEmbedder{}, &capturingVectorStore{}, 0)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultTopK, retriever.topK, "topK<=0应回落默认值")
}

func TestPostingTexts(t *testing.T) {
	jobs := []types.RetrievedJob{
		{Text: "first"},
		{Text: ""},
		{Text: "second"},
	}
	assert.Equal(t, []string{"first", "second"}, PostingTexts(jobs))
	assert.Empty(t, PostingTexts(nil))
}
