package processor

import (
	"context"
	"io"

	"github.com/cloudwego/eino/components/embedding"

	"upskill-agent-go/internal/storage"
	"upskill-agent-go/internal/types"
)

//
// PDF解析相关接口
//

// PDFExtractor PDF提取器接口
type PDFExtractor interface {
	// ExtractFromFile 从PDF文件提取文本和元数据
	ExtractFromFile(ctx context.Context, filePath string) (string, map[string]interface{}, error)

	// ExtractTextFromReader 从io.Reader提取文本和元数据。
	// uri 仅用于日志与元数据标记。
	ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string, options interface{}) (string, map[string]interface{}, error)

	// ExtractTextFromBytes 从字节数组提取文本和元数据
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error)
}

//
// LLM相关接口
//

// ResumeExtractor 简历结构化抽取接口。
// 返回候选人画像与实际生效的模型名。
type ResumeExtractor interface {
	ExtractProfile(ctx context.Context, resumeText string) (*types.CandidateProfile, string, error)
}

// SkillRecommender 技能推荐接口
type SkillRecommender interface {
	RecommendSkills(ctx context.Context, profile *types.CandidateProfile, jobPostings []string) (*types.SkillRecommendation, string, error)
}

//
// 向量嵌入相关接口
//

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
type TextEmbedder interface {
	// EmbedStrings 将文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

//
// 存储相关接口
//

// VectorStore 向量存储接口，覆盖检索与入库两侧
type VectorStore interface {
	// UpsertJobChunks 写入岗位分块向量，返回点ID列表
	UpsertJobChunks(ctx context.Context, chunks []types.JobChunk, embeddings [][]float64) ([]string, error)

	// SearchSimilarJobs 按查询向量检索最近邻分块
	SearchSimilarJobs(ctx context.Context, queryVector []float64, limit int, filter map[string]interface{}) ([]storage.SearchResult, error)

	// CountPoints 返回集合中的向量总数
	CountPoints(ctx context.Context) (int64, error)
}

// ChunkDeduper 岗位分块去重接口
type ChunkDeduper interface {
	// CheckAndAddChunkMD5 原子地检查并登记分块MD5，返回true表示已存在
	CheckAndAddChunkMD5(ctx context.Context, md5Hex string) (bool, error)
}

// ResumeDeduper 简历原件去重接口
type ResumeDeduper interface {
	// CheckAndAddResumeMD5 原子地检查并登记简历MD5，返回true表示重复提交
	CheckAndAddResumeMD5(ctx context.Context, md5Hex string) (bool, error)

	// RemoveResumeMD5 回滚登记（分析失败时调用，避免重试被误判重复）
	RemoveResumeMD5(ctx context.Context, md5Hex string) error
}

// 编译期断言：具体存储实现满足处理器侧接口
var (
	_ VectorStore   = (*storage.Qdrant)(nil)
	_ ChunkDeduper  = (*storage.Redis)(nil)
	_ ResumeDeduper = (*storage.Redis)(nil)
)
