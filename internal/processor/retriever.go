package processor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/logger"
	"upskill-agent-go/internal/parser"
	"upskill-agent-go/internal/tracing"
	"upskill-agent-go/internal/types"
)

var retrieverTracer = otel.Tracer("upskill-agent-go/processor/retriever")

// JobRetriever 按候选人画像检索语义相近的岗位分块。
// 查询向量与语料向量必须出自同一个Embedder实例，见 OpenAIEmbedder 的约束说明。
type JobRetriever struct {
	embedder    TextEmbedder
	vectorStore VectorStore
	topK        int
}

// NewJobRetriever 创建岗位检索器。topK<=0 时使用默认值。
func NewJobRetriever(embedder TextEmbedder, vectorStore VectorStore, topK int) (*JobRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder不能为nil")
	}
	if vectorStore == nil {
		return nil, fmt.Errorf("vectorStore不能为nil")
	}
	if topK <= 0 {
		topK = constants.DefaultTopK
	}
	return &JobRetriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		topK:        topK,
	}, nil
}

// Retrieve 检索与候选人画像最相近的岗位分块。
// 语料库为空不是错误：返回空切片，调用方降级为仅凭画像推荐。
func (r *JobRetriever) Retrieve(ctx context.Context, profile *types.CandidateProfile) ([]types.RetrievedJob, error) {
	ctx, span := retrieverTracer.Start(ctx, "JobRetriever.Retrieve",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if profile == nil {
		err := fmt.Errorf("候选人画像不能为nil")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	query := parser.BuildJobQueryPrompt(profile)
	span.SetAttributes(
		attribute.Int("retriever.top_k", r.topK),
		attribute.Int("retriever.query_length", len(query)),
	)

	vectors, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}
	if len(vectors) != 1 {
		err := fmt.Errorf("查询向量化返回 %d 个向量，期望1个", len(vectors))
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	results, err := r.vectorStore.SearchSimilarJobs(ctx, vectors[0], r.topK, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	retrieved := make([]types.RetrievedJob, 0, len(results))
	for _, res := range results {
		job := types.RetrievedJob{
			Score:    res.Score,
			Metadata: res.Payload,
		}
		if text, ok := res.Payload["text"].(string); ok {
			job.Text = text
		}
		if title, ok := res.Payload["title"].(string); ok {
			job.Title = title
		}
		// payload缺text的点对推荐没有价值，跳过
		if job.Text == "" {
			logger.Ctx(ctx).Warn().Str("point_id", res.ID).Msg("检索命中的点缺少text载荷，已跳过")
			continue
		}
		retrieved = append(retrieved, job)
	}

	span.SetAttributes(attribute.Int("retriever.result_count", len(retrieved)))
	span.SetStatus(codes.Ok, "")

	logger.Ctx(ctx).Debug().
		Int("top_k", r.topK).
		Int("results", len(retrieved)).
		Msg("岗位检索完成")

	return retrieved, nil
}

// PostingTexts 取出检索结果的分块文本，供推荐提示词拼装
func PostingTexts(jobs []types.RetrievedJob) []string {
	texts := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.Text != "" {
			texts = append(texts, job.Text)
		}
	}
	return texts
}
