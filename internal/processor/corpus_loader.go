package processor

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"upskill-agent-go/internal/config"
	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/logger"
	"upskill-agent-go/internal/parser"
	"upskill-agent-go/internal/storage"
	"upskill-agent-go/internal/storage/models"
	"upskill-agent-go/internal/types"
)

// CorpusLoader 岗位语料加载器：分块 -> 去重 -> 向量化 -> 入库。
// 支持两种来源：CSV批量导入和RabbitMQ队列消费，共用同一条摄取管线。
type CorpusLoader struct {
	chunker     *parser.JobDescriptionChunker
	embedder    TextEmbedder
	vectorStore VectorStore
	deduper     ChunkDeduper   // 可为nil：不做去重，重复分块靠内容派生点ID幂等覆盖
	db          *storage.MySQL // 可为nil：不落元数据与审计记录
	batchSize   int
}

// IngestStats 一次摄取的汇总统计
type IngestStats struct {
	JobsTotal      int      `json:"jobs_total"`
	JobsIndexed    int      `json:"jobs_indexed"`
	JobsSkipped    int      `json:"jobs_skipped"`
	JobsFailed     int      `json:"jobs_failed"`
	ChunksTotal    int      `json:"chunks_total"`
	ChunksUpserted int      `json:"chunks_upserted"`
	ChunksSkipped  int      `json:"chunks_skipped"`
	Errors         []string `json:"errors,omitempty"`
}

// NewCorpusLoader 创建语料加载器。deduper与db可为nil，对应能力降级。
func NewCorpusLoader(embedder TextEmbedder, vectorStore VectorStore, deduper ChunkDeduper, db *storage.MySQL, loaderCfg config.LoaderConfig) (*CorpusLoader, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder不能为nil")
	}
	if vectorStore == nil {
		return nil, fmt.Errorf("vectorStore不能为nil")
	}

	chunkMaxWords := loaderCfg.ChunkMaxWords
	if chunkMaxWords <= 0 {
		chunkMaxWords = constants.DefaultChunkMaxWords
	}
	batchSize := loaderCfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = constants.DefaultEmbedBatchSize
	}

	return &CorpusLoader{
		chunker:     parser.NewJobDescriptionChunker(chunkMaxWords),
		embedder:    embedder,
		vectorStore: vectorStore,
		deduper:     deduper,
		db:          db,
		batchSize:   batchSize,
	}, nil
}

// IngestJob 摄取单个岗位：分块、去重、批量向量化、写入向量库与元数据表。
// 全部分块都已存在时岗位标记为SKIPPED，不算失败。
func (l *CorpusLoader) IngestJob(ctx context.Context, msg types.JobPostingMessage) (*IngestStats, error) {
	stats := &IngestStats{JobsTotal: 1}

	title := strings.TrimSpace(msg.Title)
	description := parser.NormalizeDescription(msg.Description)
	if title == "" || description == "" {
		stats.JobsFailed = 1
		return stats, fmt.Errorf("%w: 岗位title与description均不能为空", ErrInvalidInput)
	}

	jobID := strings.TrimSpace(msg.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}

	chunks := l.chunker.ChunkJob(jobID, title, msg.Category, description)
	stats.ChunksTotal = len(chunks)
	if len(chunks) == 0 {
		stats.JobsFailed = 1
		return stats, fmt.Errorf("%w: 岗位描述分块后为空", ErrInvalidInput)
	}

	// 过滤已入库的分块
	freshChunks := make([]types.JobChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if l.deduper != nil {
			exists, err := l.deduper.CheckAndAddChunkMD5(ctx, chunk.ChunkID)
			if err != nil {
				// 去重服务故障时宁可重复入库：点ID由内容派生，upsert天然幂等
				logger.Ctx(ctx).Warn().Err(err).Str("chunk_id", chunk.ChunkID).Msg("分块去重检查失败，按新分块处理")
			} else if exists {
				stats.ChunksSkipped++
				continue
			}
		}
		freshChunks = append(freshChunks, chunk)
	}

	if len(freshChunks) > 0 {
		if err := l.embedAndUpsert(ctx, freshChunks); err != nil {
			stats.JobsFailed = 1
			l.saveJobPosting(ctx, jobID, title, msg.Category, description, chunks, models.JobStatusFailed)
			return stats, err
		}
		stats.ChunksUpserted = len(freshChunks)
		stats.JobsIndexed = 1
		l.saveJobPosting(ctx, jobID, title, msg.Category, description, chunks, models.JobStatusIndexed)
	} else {
		stats.JobsSkipped = 1
		l.saveJobPosting(ctx, jobID, title, msg.Category, description, chunks, models.JobStatusSkipped)
	}

	logger.Ctx(ctx).Debug().
		Str("job_id", jobID).
		Int("chunks_total", stats.ChunksTotal).
		Int("chunks_upserted", stats.ChunksUpserted).
		Int("chunks_skipped", stats.ChunksSkipped).
		Msg("岗位摄取完成")

	return stats, nil
}

// embedAndUpsert 按批次向量化并写入向量库
func (l *CorpusLoader) embedAndUpsert(ctx context.Context, chunks []types.JobChunk) error {
	for start := 0; start < len(chunks); start += l.batchSize {
		end := start + l.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		embeddings, err := l.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: 批量向量化失败 (批次 %d-%d): %v", ErrUpstreamService, start, end, err)
		}

		if _, err := l.vectorStore.UpsertJobChunks(ctx, batch, embeddings); err != nil {
			return fmt.Errorf("%w: 写入向量库失败 (批次 %d-%d): %v", ErrStorageFailed, start, end, err)
		}
	}
	return nil
}

// saveJobPosting 落岗位元数据，失败只告警不影响主流程
func (l *CorpusLoader) saveJobPosting(ctx context.Context, jobID, title, category, description string, chunks []types.JobChunk, status string) {
	if l.db == nil {
		return
	}

	chunkIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ChunkID
	}
	chunkIDsJSON, err := json.Marshal(chunkIDs)
	if err != nil {
		chunkIDsJSON = []byte("[]")
	}

	posting := &models.JobPosting{
		JobID:           jobID,
		Title:           title,
		Category:        category,
		DescriptionText: description,
		ChunkCount:      len(chunks),
		ChunkIDsJSON:    datatypes.JSON(chunkIDsJSON),
		Status:          status,
	}

	if err := l.db.SaveJobPosting(ctx, posting); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", jobID).Msg("保存岗位元数据失败")
	}
}

// LoadFromCSV 从CSV文件批量摄取岗位。
// 表头不区分大小写，识别 job_id/id、title/job_title、category、description/job_description。
// 单个岗位失败不中断整个导入，错误汇总在返回的统计里。
func (l *CorpusLoader) LoadFromCSV(ctx context.Context, csvPath string) (*IngestStats, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("打开CSV文件失败: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // 容忍不规则行

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取CSV表头失败: %w", err)
	}

	cols, err := resolveCSVColumns(header)
	if err != nil {
		return nil, err
	}

	run := l.beginIngestionRun(ctx, "csv", csvPath)
	total := &IngestStats{}

	for {
		select {
		case <-ctx.Done():
			l.finishIngestionRun(ctx, run, total, models.RunStatusFailed)
			return total, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			total.Errors = append(total.Errors, fmt.Sprintf("第 %d 行读取失败: %v", total.JobsTotal+2, err))
			continue
		}

		msg := types.JobPostingMessage{
			JobID:       fieldAt(record, cols.jobID),
			Title:       fieldAt(record, cols.title),
			Category:    fieldAt(record, cols.category),
			Description: fieldAt(record, cols.description),
		}

		stats, err := l.IngestJob(ctx, msg)
		mergeStats(total, stats)
		if err != nil {
			total.Errors = append(total.Errors, fmt.Sprintf("岗位 %q: %v", msg.Title, err))
			logger.Ctx(ctx).Warn().Err(err).Str("title", msg.Title).Msg("岗位摄取失败，继续处理后续行")
		}
	}

	status := models.RunStatusFinished
	if total.JobsTotal > 0 && total.JobsIndexed == 0 && total.JobsSkipped == 0 {
		status = models.RunStatusFailed
	}
	l.finishIngestionRun(ctx, run, total, status)

	if total.JobsTotal == 0 {
		return total, fmt.Errorf("%w: CSV中没有有效岗位数据", ErrEmptyCorpus)
	}

	logger.Ctx(ctx).Info().
		Str("csv", csvPath).
		Int("jobs_total", total.JobsTotal).
		Int("jobs_indexed", total.JobsIndexed).
		Int("chunks_upserted", total.ChunksUpserted).
		Int("chunks_skipped", total.ChunksSkipped).
		Int("errors", len(total.Errors)).
		Msg("CSV语料导入完成")

	return total, nil
}

// csvColumns CSV列索引映射，-1表示该列不存在
type csvColumns struct {
	jobID       int
	title       int
	category    int
	description int
}

// resolveCSVColumns 按表头名定位各列，title与description必须存在
func resolveCSVColumns(header []string) (csvColumns, error) {
	cols := csvColumns{jobID: -1, title: -1, category: -1, description: -1}

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "job_id", "id":
			cols.jobID = i
		case "title", "job_title", "job title":
			cols.title = i
		case "category", "job_category":
			cols.category = i
		case "description", "job_description", "job description":
			cols.description = i
		}
	}

	if cols.title < 0 || cols.description < 0 {
		return cols, fmt.Errorf("CSV表头缺少必需列 title/description, 实际表头: %s", strings.Join(header, ", "))
	}
	return cols, nil
}

func fieldAt(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func mergeStats(total, part *IngestStats) {
	if part == nil {
		return
	}
	total.JobsTotal += part.JobsTotal
	total.JobsIndexed += part.JobsIndexed
	total.JobsSkipped += part.JobsSkipped
	total.JobsFailed += part.JobsFailed
	total.ChunksTotal += part.ChunksTotal
	total.ChunksUpserted += part.ChunksUpserted
	total.ChunksSkipped += part.ChunksSkipped
}

// StartQueueConsumer 启动队列消费模式：声明exchange/queue/binding后持续消费岗位消息。
// 返回stop通道，close即停止消费。
func (l *CorpusLoader) StartQueueConsumer(ctx context.Context, mq *storage.RabbitMQ, mqCfg *config.RabbitMQConfig) (chan<- struct{}, error) {
	if mq == nil {
		return nil, fmt.Errorf("RabbitMQ客户端不能为nil")
	}
	if mqCfg == nil || mqCfg.PostingQueue == "" {
		return nil, fmt.Errorf("RabbitMQ队列配置不完整")
	}

	if mqCfg.CorpusExchange != "" {
		if err := mq.EnsureExchange(mqCfg.CorpusExchange, "direct", true); err != nil {
			return nil, err
		}
	}
	if err := mq.EnsureQueue(mqCfg.PostingQueue, true); err != nil {
		return nil, err
	}
	if mqCfg.CorpusExchange != "" {
		if err := mq.BindQueue(mqCfg.PostingQueue, mqCfg.CorpusExchange, mqCfg.PostingRoutingKey); err != nil {
			return nil, err
		}
	}

	prefetch := mqCfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}

	return mq.StartConsumer(mqCfg.PostingQueue, prefetch, func(body []byte) bool {
		var msg types.JobPostingMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			// 消息体坏了，重入队只会死循环，直接丢弃
			logger.Ctx(ctx).Error().Err(err).Msg("岗位消息JSON解析失败，丢弃该消息")
			return true
		}

		if _, err := l.IngestJob(ctx, msg); err != nil {
			// 输入类错误重试无意义；上游/存储类错误重入队等待重试
			if errors.Is(err, ErrInvalidInput) {
				logger.Ctx(ctx).Warn().Err(err).Str("title", msg.Title).Msg("岗位消息输入无效，丢弃")
				return true
			}
			logger.Ctx(ctx).Warn().Err(err).Str("title", msg.Title).Msg("岗位摄取失败，消息重新入队")
			return false
		}
		return true
	})
}

// beginIngestionRun 写入一条RUNNING状态的审计记录
func (l *CorpusLoader) beginIngestionRun(ctx context.Context, sourceType, sourceDetail string) *models.IngestionRun {
	if l.db == nil {
		return nil
	}

	run := &models.IngestionRun{
		RunID:        uuid.NewString(),
		SourceType:   sourceType,
		SourceDetail: sourceDetail,
		Status:       models.RunStatusRunning,
		StartedAt:    time.Now(),
	}
	if err := l.db.CreateIngestionRun(ctx, run); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("创建摄取审计记录失败")
		return nil
	}
	return run
}

// finishIngestionRun 回填审计记录的统计与终态
func (l *CorpusLoader) finishIngestionRun(ctx context.Context, run *models.IngestionRun, stats *IngestStats, status string) {
	if l.db == nil || run == nil {
		return
	}

	now := time.Now()
	run.JobsTotal = stats.JobsTotal
	run.JobsIndexed = stats.JobsIndexed
	run.ChunksTotal = stats.ChunksTotal
	run.ChunksUpserted = stats.ChunksUpserted
	run.ChunksSkipped = stats.ChunksSkipped
	run.Status = status
	run.FinishedAt = &now

	if len(stats.Errors) > 0 {
		if errsJSON, err := json.Marshal(stats.Errors); err == nil {
			run.ErrorsJSON = datatypes.JSON(errsJSON)
		}
	}

	if err := l.db.UpdateIngestionRun(ctx, run); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("run_id", run.RunID).Msg("更新摄取审计记录失败")
	}
}
