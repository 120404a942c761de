package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/logger"
	"upskill-agent-go/internal/parser"
	"upskill-agent-go/internal/storage"
	"upskill-agent-go/internal/storage/models"
	"upskill-agent-go/internal/tracing"
	"upskill-agent-go/internal/types"
)

var processorTracer = otel.Tracer("upskill-agent-go/processor")

// UpskillProcessor 简历技能分析的编排器：
// PDF提取 -> 结构化抽取 -> 岗位检索 -> 技能推荐。
// 各阶段的失败策略不同：抽取失败整体失败，检索失败降级为仅凭画像推荐。
type UpskillProcessor struct {
	pdfExtractor    PDFExtractor
	resumeExtractor ResumeExtractor
	retriever       *JobRetriever
	recommender     SkillRecommender

	// 可选依赖，nil表示相应能力关闭
	archiver      storage.ObjectStorage
	resumeDeduper ResumeDeduper

	// rejectDuplicates 为true时重复提交直接拒绝，否则只在结果里标记
	rejectDuplicates bool
}

// UpskillProcessorOption 定义编排器的配置选项
type UpskillProcessorOption func(*UpskillProcessor)

// WithArchiver 启用简历原件归档
func WithArchiver(archiver storage.ObjectStorage) UpskillProcessorOption {
	return func(p *UpskillProcessor) {
		p.archiver = archiver
	}
}

// WithResumeDeduper 启用简历重复提交检测
func WithResumeDeduper(deduper ResumeDeduper) UpskillProcessorOption {
	return func(p *UpskillProcessor) {
		p.resumeDeduper = deduper
	}
}

// WithRejectDuplicates 重复提交直接拒绝（API层映射为409），
// 默认行为是标记后重新分析：语料库可能在两次提交之间发生了变化
func WithRejectDuplicates() UpskillProcessorOption {
	return func(p *UpskillProcessor) {
		p.rejectDuplicates = true
	}
}

// NewUpskillProcessor 创建编排器。retriever可为nil：检索能力整体关闭，推荐降级。
func NewUpskillProcessor(
	pdfExtractor PDFExtractor,
	resumeExtractor ResumeExtractor,
	retriever *JobRetriever,
	recommender SkillRecommender,
	opts ...UpskillProcessorOption,
) (*UpskillProcessor, error) {
	if pdfExtractor == nil {
		return nil, fmt.Errorf("pdfExtractor不能为nil")
	}
	if resumeExtractor == nil {
		return nil, fmt.Errorf("resumeExtractor不能为nil")
	}
	if recommender == nil {
		return nil, fmt.Errorf("recommender不能为nil")
	}

	p := &UpskillProcessor{
		pdfExtractor:    pdfExtractor,
		resumeExtractor: resumeExtractor,
		retriever:       retriever,
		recommender:     recommender,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AnalysisResult 一次简历分析的完整输出
type AnalysisResult struct {
	AnalysisID string `json:"analysis_id"`

	// Profile 抽取出的候选人画像
	Profile *types.CandidateProfile `json:"profile"`

	// RecommendedSkills 推荐补强的技能，最多9个
	RecommendedSkills []string `json:"recommended_skills"`

	// RetrievedJobCount 实际参与推荐的岗位分块数
	RetrievedJobCount int `json:"retrieved_job_count"`

	// RetrievalDegraded 检索失败或关闭时为true，推荐仅基于画像
	RetrievalDegraded bool `json:"retrieval_degraded"`

	// ExtractionModel / RecommendModel 两个阶段实际生效的模型名
	ExtractionModel string `json:"extraction_model"`
	RecommendModel  string `json:"recommend_model"`

	// DuplicateSubmission 去重窗口内重复提交的同一份文件
	DuplicateSubmission bool `json:"duplicate_submission,omitempty"`

	// ArchiveObjectKey 原件归档对象键，归档关闭或失败时为空
	ArchiveObjectKey string `json:"archive_object_key,omitempty"`

	// ResumeTextLength 提取出的简历文本长度
	ResumeTextLength int `json:"resume_text_length"`

	// ElapsedMs 端到端耗时
	ElapsedMs int64 `json:"elapsed_ms"`
}

// AnalyzeResume 对一份PDF简历做完整的技能差距分析。
// filename 仅用于归档对象键的扩展名与日志。
func (p *UpskillProcessor) AnalyzeResume(ctx context.Context, pdfData []byte, filename string) (*AnalysisResult, error) {
	startTime := time.Now()
	analysisID := uuid.NewString()

	ctx, span := processorTracer.Start(ctx, "UpskillProcessor.AnalyzeResume",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("analysis.id", analysisID),
			attribute.Int("analysis.pdf_bytes", len(pdfData)),
		))
	defer span.End()

	log := logger.Ctx(ctx)

	if len(pdfData) == 0 {
		err := NewInputError(analysisID, "上传内容为空")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	result := &AnalysisResult{AnalysisID: analysisID}

	// 重复提交检测（可选）。重复不是错误：允许重新分析，只在结果里标记
	fileMD5 := storage.FileMD5Hex(pdfData)
	md5Registered := false
	if p.resumeDeduper != nil {
		exists, err := p.resumeDeduper.CheckAndAddResumeMD5(ctx, fileMD5)
		if err != nil {
			log.Warn().Err(err).Str("analysis_id", analysisID).Msg("简历去重检查失败，跳过去重")
		} else {
			result.DuplicateSubmission = exists
			md5Registered = !exists
			if exists && p.rejectDuplicates {
				err := NewDuplicateError(analysisID, fmt.Sprintf("文件MD5 %s 在去重窗口内已提交", fileMD5))
				tracing.RecordError(span, err, tracing.ErrorTypeValidation)
				return nil, err
			}
		}
	}

	// 分析中途失败时回滚本次登记，否则用户重试会被误标为重复
	rollbackDedup := func() {
		if md5Registered && p.resumeDeduper != nil {
			if err := p.resumeDeduper.RemoveResumeMD5(context.WithoutCancel(ctx), fileMD5); err != nil {
				log.Warn().Err(err).Str("analysis_id", analysisID).Msg("回滚简历MD5登记失败")
			}
		}
	}

	// 原件归档（可选），失败不影响分析
	if p.archiver != nil {
		ext := strings.ToLower(filepath.Ext(filename))
		if ext == "" {
			ext = ".pdf"
		}
		objectKey, err := p.archiver.UploadResumeFile(ctx, analysisID, ext, pdfData)
		if err != nil {
			log.Warn().Err(err).Str("analysis_id", analysisID).Msg("简历原件归档失败")
		} else {
			result.ArchiveObjectKey = objectKey
		}
	}

	// 阶段1: PDF文本提取
	resumeText, _, err := p.pdfExtractor.ExtractTextFromBytes(ctx, pdfData, filename, nil)
	if err != nil {
		rollbackDedup()
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, NewInputError(analysisID, fmt.Sprintf("PDF解析失败: %v", err))
	}

	resumeText = strings.TrimSpace(resumeText)
	result.ResumeTextLength = len(resumeText)
	if len(resumeText) < constants.MinResumeTextLength {
		rollbackDedup()
		err := NewInputError(analysisID, fmt.Sprintf(
			"提取文本过短 (%d 字符, 最少 %d)，可能是图片型或损坏的PDF",
			len(resumeText), constants.MinResumeTextLength))
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	// 阶段2: 结构化抽取。此阶段失败整体失败：没有画像就没有后续一切
	profile, extractionModel, err := p.resumeExtractor.ExtractProfile(ctx, resumeText)
	if err != nil {
		rollbackDedup()
		classified := p.classifyLLMError(analysisID, "extract_profile", err)
		tracing.RecordError(span, classified, tracing.ErrorTypeLLM)
		return nil, classified
	}
	result.Profile = profile
	result.ExtractionModel = extractionModel

	// 阶段3: 岗位检索。失败降级：记录告警，推荐仅基于画像
	var postingTexts []string
	if p.retriever != nil {
		jobs, err := p.retriever.Retrieve(ctx, profile)
		if err != nil {
			result.RetrievalDegraded = true
			log.Warn().Err(err).Str("analysis_id", analysisID).Msg("岗位检索失败，降级为仅凭画像推荐")
			span.AddEvent("retrieval_degraded", trace.WithAttributes(attribute.String("reason", err.Error())))
		} else {
			postingTexts = PostingTexts(jobs)
			result.RetrievedJobCount = len(postingTexts)
		}
	} else {
		result.RetrievalDegraded = true
	}

	// 阶段4: 技能推荐
	recommendation, recommendModel, err := p.recommender.RecommendSkills(ctx, profile, postingTexts)
	if err != nil {
		rollbackDedup()
		classified := p.classifyLLMError(analysisID, "recommend_skills", err)
		tracing.RecordError(span, classified, tracing.ErrorTypeLLM)
		return nil, classified
	}
	result.RecommendedSkills = recommendation.RecommendedSkills
	result.RecommendModel = recommendModel

	result.ElapsedMs = time.Since(startTime).Milliseconds()

	span.SetAttributes(
		attribute.Int("analysis.recommended_skills", len(result.RecommendedSkills)),
		attribute.Int("analysis.retrieved_jobs", result.RetrievedJobCount),
		attribute.Bool("analysis.retrieval_degraded", result.RetrievalDegraded),
		attribute.Int64("analysis.elapsed_ms", result.ElapsedMs),
	)
	span.SetStatus(codes.Ok, "")

	log.Info().
		Str("analysis_id", analysisID).
		Str("extraction_model", extractionModel).
		Str("recommend_model", recommendModel).
		Int("retrieved_jobs", result.RetrievedJobCount).
		Int("recommended_skills", len(result.RecommendedSkills)).
		Bool("retrieval_degraded", result.RetrievalDegraded).
		Int64("elapsed_ms", result.ElapsedMs).
		Msg("简历技能分析完成")

	return result, nil
}

// classifyLLMError 把解析器的哨兵错误映射到处理器的错误分类
func (p *UpskillProcessor) classifyLLMError(analysisID, stage string, err error) error {
	switch {
	case errors.Is(err, parser.ErrMalformedLLMOutput), errors.Is(err, parser.ErrSchemaViolation):
		return NewContractError(analysisID, stage, err.Error())
	case errors.Is(err, parser.ErrLLMCallFailed):
		return NewUpstreamError(analysisID, stage, err.Error())
	default:
		return NewUpstreamError(analysisID, stage, err.Error())
	}
}

// CorpusStatus 语料库状态快照
type CorpusStatus struct {
	// VectorCount 向量库中的分块总数
	VectorCount int64 `json:"vector_count"`

	// IndexedJobs / 其他状态计数来自MySQL元数据表，未接MySQL时为-1
	IndexedJobs int64 `json:"indexed_jobs"`
	FailedJobs  int64 `json:"failed_jobs"`

	// DedupChunks Redis去重集合登记的分块数，未接Redis时为-1
	DedupChunks int64 `json:"dedup_chunks"`

	// Ready 语料库是否可以支撑检索
	Ready bool `json:"ready"`
}

// CheckCorpusStatus 查询语料库当前状态，供健康检查与加载后验证
func CheckCorpusStatus(ctx context.Context, vectorStore VectorStore, db *storage.MySQL, dedup *storage.Redis) (*CorpusStatus, error) {
	if vectorStore == nil {
		return nil, fmt.Errorf("vectorStore不能为nil")
	}

	count, err := vectorStore.CountPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询向量数失败: %v", ErrStorageFailed, err)
	}

	status := &CorpusStatus{
		VectorCount: count,
		IndexedJobs: -1,
		FailedJobs:  -1,
		DedupChunks: -1,
		Ready:       count > 0,
	}

	if db != nil {
		if indexed, err := db.CountJobPostingsByStatus(ctx, models.JobStatusIndexed); err == nil {
			status.IndexedJobs = indexed
		}
		if failed, err := db.CountJobPostingsByStatus(ctx, models.JobStatusFailed); err == nil {
			status.FailedJobs = failed
		}
	}

	if dedup != nil {
		if chunks, err := dedup.CountChunkMD5(ctx); err == nil {
			status.DedupChunks = chunks
		}
	}

	return status, nil
}
