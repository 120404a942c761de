package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"upskill-agent-go/internal/api/handler"
	"upskill-agent-go/internal/types"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, analyzeHandler *handler.AnalyzeHandler, corpusHandler *handler.CorpusHandler) {
	api := h.Group("/api/v1")

	// 简历技能分析：上传PDF，同步返回画像与推荐技能
	api.POST("/resume/analyze", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		result, err := analyzeHandler.HandleAnalyze(c, file, fileHeader.Filename)
		if err != nil {
			ctx.JSON(handler.StatusCodeForError(err), utils.H{"error": err.Error()})
			return
		}

		ctx.JSON(consts.StatusOK, result)
	})

	// 岗位语料发布：投递到摄取队列，异步入库
	api.POST("/jobs", func(c context.Context, ctx *app.RequestContext) {
		var msg types.JobPostingMessage
		if err := ctx.BindJSON(&msg); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体JSON解析失败"})
			return
		}

		resp, err := corpusHandler.HandlePublishJob(c, msg)
		if err != nil {
			ctx.JSON(handler.StatusCodeForError(err), utils.H{"error": err.Error()})
			return
		}

		ctx.JSON(consts.StatusAccepted, resp)
	})

	// 语料库状态
	api.GET("/corpus/status", func(c context.Context, ctx *app.RequestContext) {
		status, err := corpusHandler.HandleCorpusStatus(c)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, status)
	})

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
