package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"upskill-agent-go/internal/config"
	"upskill-agent-go/internal/logger"
	"upskill-agent-go/internal/parser"
	"upskill-agent-go/internal/processor"
	"upskill-agent-go/internal/storage"
)

// 岗位语料加载器。两种运行模式：
//
//	corpusloader --csv data/jobs.csv     一次性批量导入后退出
//	corpusloader --queue                 常驻消费RabbitMQ岗位队列
func main() {
	_ = godotenv.Load()

	var (
		configPath string
		csvPath    string
		queueMode  bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.StringVar(&csvPath, "csv", "", "要导入的岗位CSV文件路径")
	pflag.BoolVar(&queueMode, "queue", false, "以队列消费模式运行")
	pflag.Parse()

	if csvPath == "" && !queueMode {
		logger.Fatal().Msg("必须指定 --csv 或 --queue 其中之一")
	}

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

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()

	embedder, err := parser.NewOpenAIEmbedder(cfg.Embedding, parser.WithEmbedderDebug(cfg.Logger.Level == "debug"))
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化Embedder失败")
	}

	var deduper processor.ChunkDeduper
	if storageManager.Redis != nil {
		deduper = storageManager.Redis
	} else {
		logger.Warn().Msg("Redis未配置，分块去重关闭，重复分块依赖点ID幂等覆盖")
	}

	loader, err := processor.NewCorpusLoader(embedder, storageManager.Qdrant, deduper, storageManager.MySQL, cfg.Loader)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化语料加载器失败")
	}

	if csvPath != "" {
		stats, err := loader.LoadFromCSV(ctx, csvPath)
		if err != nil {
			logger.Fatal().Err(err).Str("csv", csvPath).Msg("CSV导入失败")
		}
		logger.Info().
			Int("jobs_total", stats.JobsTotal).
			Int("jobs_indexed", stats.JobsIndexed).
			Int("jobs_skipped", stats.JobsSkipped).
			Int("jobs_failed", stats.JobsFailed).
			Int("chunks_upserted", stats.ChunksUpserted).
			Int("chunks_skipped", stats.ChunksSkipped).
			Msg("CSV导入完成")
		if !queueMode {
			return
		}
	}

	if storageManager.RabbitMQ == nil {
		logger.Fatal().Msg("队列模式需要配置RabbitMQ")
	}

	stopCh, err := loader.StartQueueConsumer(ctx, storageManager.RabbitMQ, &cfg.RabbitMQ)
	if err != nil {
		logger.Fatal().Err(err).Msg("启动队列消费者失败")
	}
	logger.Info().Str("queue", cfg.RabbitMQ.PostingQueue).Msg("语料队列消费者已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，停止消费...")
	close(stopCh)
}
