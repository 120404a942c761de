package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"upskill-agent-go/internal/config"
	"upskill-agent-go/internal/logger"
	"upskill-agent-go/internal/processor"
)

// AnalyzeHandler 简历技能分析入口，负责请求校验与编排器调用
type AnalyzeHandler struct {
	cfg  *config.Config
	proc *processor.UpskillProcessor
}

// NewAnalyzeHandler 创建简历分析处理器
func NewAnalyzeHandler(cfg *config.Config, proc *processor.UpskillProcessor) *AnalyzeHandler {
	return &AnalyzeHandler{
		cfg:  cfg,
		proc: proc,
	}
}

// HandleAnalyze 处理简历分析请求。同步执行完整管线并返回分析结果。
func (h *AnalyzeHandler) HandleAnalyze(ctx context.Context, reader io.Reader, filename string) (*processor.AnalysisResult, error) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && ext != ".pdf" {
		return nil, processor.NewInputError("", fmt.Sprintf("仅支持PDF文件, 收到: %s", ext))
	}

	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}

	result, err := h.proc.AnalyzeResume(ctx, fileBytes, filename)
	if err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("filename", filename).
			Int("file_bytes", len(fileBytes)).
			Msg("简历分析失败")
		return nil, err
	}

	return result, nil
}

// StatusCodeForError 把处理器错误分类映射为HTTP状态码
func StatusCodeForError(err error) int {
	switch {
	case errors.Is(err, processor.ErrInvalidInput):
		return 400
	case errors.Is(err, processor.ErrDuplicateResume):
		return 409
	case errors.Is(err, processor.ErrUpstreamService), errors.Is(err, processor.ErrContractViolation):
		return 502
	default:
		return 500
	}
}
