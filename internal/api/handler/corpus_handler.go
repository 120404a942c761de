package handler

import (
	"context"
	"fmt"
	"strings"

	"upskill-agent-go/internal/config"
	"upskill-agent-go/internal/logger"
	"upskill-agent-go/internal/processor"
	"upskill-agent-go/internal/storage"
	"upskill-agent-go/internal/types"
)

// CorpusHandler 岗位语料管理入口：发布岗位消息、查询语料库状态
type CorpusHandler struct {
	cfg     *config.Config
	storage *storage.Storage
}

// NewCorpusHandler 创建语料管理处理器
func NewCorpusHandler(cfg *config.Config, st *storage.Storage) *CorpusHandler {
	return &CorpusHandler{
		cfg:     cfg,
		storage: st,
	}
}

// JobPublishResponse 岗位发布响应
type JobPublishResponse struct {
	Status string `json:"status"`
	Title  string `json:"title"`
}

// HandlePublishJob 把岗位消息发布到语料摄取队列，由加载器进程异步入库
func (h *CorpusHandler) HandlePublishJob(ctx context.Context, msg types.JobPostingMessage) (*JobPublishResponse, error) {
	if h.storage.RabbitMQ == nil {
		return nil, fmt.Errorf("%w: RabbitMQ未配置, 异步语料摄取不可用", processor.ErrStorageFailed)
	}

	msg.Title = strings.TrimSpace(msg.Title)
	if msg.Title == "" || strings.TrimSpace(msg.Description) == "" {
		return nil, processor.NewInputError("", "岗位title与description均不能为空")
	}

	if err := h.storage.RabbitMQ.EnsureExchange(h.cfg.RabbitMQ.CorpusExchange, "direct", true); err != nil {
		return nil, fmt.Errorf("确保交换机存在失败: %w", err)
	}

	if err := h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.CorpusExchange,
		h.cfg.RabbitMQ.PostingRoutingKey,
		msg,
		true, // 持久化
	); err != nil {
		return nil, fmt.Errorf("发布岗位消息到RabbitMQ失败: %w", err)
	}

	logger.Ctx(ctx).Info().
		Str("title", msg.Title).
		Str("exchange", h.cfg.RabbitMQ.CorpusExchange).
		Msg("岗位消息已发布")

	return &JobPublishResponse{
		Status: "SUBMITTED_FOR_INGESTION",
		Title:  msg.Title,
	}, nil
}

// HandleCorpusStatus 查询语料库状态
func (h *CorpusHandler) HandleCorpusStatus(ctx context.Context) (*processor.CorpusStatus, error) {
	return processor.CheckCorpusStatus(ctx, h.storage.Qdrant, h.storage.MySQL, h.storage.Redis)
}
