package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"upskill-agent-go/internal/api/handler"
	"upskill-agent-go/internal/api/router"
	"upskill-agent-go/internal/config"
	"upskill-agent-go/internal/logger"
	"upskill-agent-go/internal/parser"
	"upskill-agent-go/internal/processor"
	"upskill-agent-go/internal/storage"

	"upskill-agent-go/internal/agent"
)

func main() {
	// .env存在则加载，密钥类配置优先走环境变量
	_ = godotenv.Load()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("配置校验失败")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	glog.SetLogger(hertzadapter.From(logger.Logger))
	logger.Info().Msg("配置加载成功")

	debug := cfg.Logger.Level == "debug"

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	logger.Info().Msg("存储服务初始化成功")

	// LLM聊天模型：主备模型共用一个客户端，逐次调用时按模型名切换
	chatModel, err := agent.NewOpenAICompatChatModel(
		cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.APIURL,
		agent.WithDefaultTemperature(float32(cfg.LLM.Temperature)),
		agent.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second}),
		agent.WithDebugLogger(debug),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化LLM聊天模型失败")
	}
	modelNames := []string{cfg.LLM.Model, cfg.LLM.FallbackModel}

	embedder, err := parser.NewOpenAIEmbedder(cfg.Embedding, parser.WithEmbedderDebug(debug))
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化Embedder失败")
	}

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("创建PDF提取器失败")
	}

	resumeExtractor, err := parser.NewLLMResumeExtractor(chatModel, modelNames,
		parser.WithExtractorTemperature(cfg.LLM.Temperature),
		parser.WithExtractorMaxTokens(cfg.LLM.ExtractionMaxTokens),
		parser.WithExtractorDebug(debug),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化简历抽取器失败")
	}

	recommender, err := parser.NewLLMSkillRecommender(chatModel, modelNames,
		parser.WithRecommenderTemperature(cfg.LLM.Temperature),
		parser.WithRecommenderMaxTokens(cfg.LLM.RecommendMaxTokens),
		parser.WithRecommenderDebug(debug),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化技能推荐器失败")
	}

	retriever, err := processor.NewJobRetriever(embedder, storageManager.Qdrant, cfg.Retriever.TopK)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化岗位检索器失败")
	}

	var procOpts []processor.UpskillProcessorOption
	if storageManager.MinIO != nil {
		procOpts = append(procOpts, processor.WithArchiver(storageManager.MinIO))
	}
	if storageManager.Redis != nil {
		procOpts = append(procOpts, processor.WithResumeDeduper(storageManager.Redis))
		if cfg.Server.RejectDuplicateResumes {
			procOpts = append(procOpts, processor.WithRejectDuplicates())
		}
	}

	proc, err := processor.NewUpskillProcessor(pdfExtractor, resumeExtractor, retriever, recommender, procOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化分析编排器失败")
	}
	logger.Info().Msg("分析编排器初始化成功")

	analyzeHandler := handler.NewAnalyzeHandler(cfg, proc)
	corpusHandler := handler.NewCorpusHandler(cfg, storageManager)

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)

	// 请求日志中间件，顺带把zerolog实例挂到请求上下文
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		c = logger.WithContext(c)
		start := time.Now()
		ctx.Next(c)
		logger.Info().
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})

	router.RegisterRoutes(h, analyzeHandler, corpusHandler)
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器启动中")

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}
