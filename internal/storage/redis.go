package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9" // Redis OpenTelemetry钩子
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"upskill-agent-go/internal/config"
	"upskill-agent-go/internal/constants"
)

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("upskill-agent-go/storage/redis")

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout: time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// CheckAndAddChunkMD5 检查并添加岗位分块MD5到去重集合，原子操作。
// 返回true表示该分块此前已入库，加载器应跳过embedding与写库。
// 语料去重集合不设过期：岗位分块一旦入库就长期有效。
func (r *Redis) CheckAndAddChunkMD5(ctx context.Context, md5Hex string) (bool, error) {
	return r.checkAndAddMD5(ctx, "Redis.CheckAndAddChunkMD5", constants.KeyChunkMD5Set, md5Hex, 0)
}

// CheckAndAddResumeMD5 检查并添加简历原始文件MD5，原子操作。
// 用于重复上传检测；记录带过期时间，过期后同一份简历可以重新分析。
func (r *Redis) CheckAndAddResumeMD5(ctx context.Context, md5Hex string) (bool, error) {
	return r.checkAndAddMD5(ctx, "Redis.CheckAndAddResumeMD5", constants.KeyResumeMD5Set, md5Hex, constants.ResumeMD5ExpireDuration)
}

// checkAndAddMD5 用Lua脚本做原子的"查重+登记"。
// 分开SISMEMBER和SADD会在并发上传下产生竞态，两个请求都认为自己是第一个。
func (r *Redis) checkAndAddMD5(ctx context.Context, spanName, setKey, md5Hex string, expire time.Duration) (exists bool, err error) {
	ctx, span := redisTracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.redis.database", fmt.Sprintf("%d", r.config.DB)),
		attribute.String("net.peer.name", r.config.Address),
		attribute.String("db.operation", "EVAL"),
		attribute.String("db.redis.key", setKey),
		attribute.String("db.redis.member", md5Hex),
	)

	if r.Client == nil {
		err = fmt.Errorf("redis client is not initialized")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	script := `
		local exists = redis.call('SISMEMBER', KEYS[1], ARGV[1])
		redis.call('SADD', KEYS[1], ARGV[1])
		if tonumber(ARGV[2]) > 0 then
			redis.call('EXPIRE', KEYS[1], ARGV[2])
		end
		return exists
	`

	res, err := r.Client.Eval(ctx, script, []string{setKey}, md5Hex, int64(expire.Seconds())).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("执行原子检查和添加操作失败: %w", err)
	}

	// Lua脚本返回0表示不存在，1表示存在
	existsVal, ok := res.(int64)
	if !ok {
		err := fmt.Errorf("意外的Redis返回类型: %T", res)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	exists = existsVal == 1
	span.SetAttributes(attribute.Bool("already_exists", exists))
	span.SetStatus(codes.Ok, "")

	return exists, nil
}

// RemoveResumeMD5 从去重集合中移除简历MD5。
// 分析流程在登记之后失败时回滚登记，否则用户重试会被误判为重复上传。
func (r *Redis) RemoveResumeMD5(ctx context.Context, md5Hex string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.SRem(ctx, constants.KeyResumeMD5Set, md5Hex).Err()
}

// CountChunkMD5 返回去重集合当前登记的分块数
func (r *Redis) CountChunkMD5(ctx context.Context) (int64, error) {
	if r.Client == nil {
		return 0, fmt.Errorf("redis client is not initialized")
	}
	return r.Client.SCard(ctx, constants.KeyChunkMD5Set).Result()
}
