package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"upskill-agent-go/internal/logger"
)

// GenerateWithModelFallback 依次用候选模型调用同一客户端，首个成功的结果即返回。
// modelNames 中的空串会被跳过；全部失败时返回聚合错误，调用方用 errors.Is 判断上游故障。
// 回退只覆盖调用失败（网络/限流/空响应），不覆盖"调用成功但内容不合规"——
// 后者属于契约校验层的职责，在解析处重试没有意义。
func GenerateWithModelFallback(ctx context.Context, chatModel model.ToolCallingChatModel, messages []*schema.Message, modelNames []string, extraOpts ...model.Option) (*schema.Message, string, error) {
	var candidates []string
	for _, name := range modelNames {
		if strings.TrimSpace(name) != "" {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("没有可用的候选模型")
	}

	var errs []string
	for i, name := range candidates {
		opts := make([]model.Option, 0, len(extraOpts)+1)
		opts = append(opts, extraOpts...)
		opts = append(opts, model.WithModel(name))

		resp, err := chatModel.Generate(ctx, messages, opts...)
		if err == nil && resp != nil && strings.TrimSpace(resp.Content) != "" {
			if i > 0 {
				logger.Warn().
					Str("model", name).
					Int("attempt", i+1).
					Msg("主模型调用失败，备用模型成功")
			}
			return resp, name, nil
		}

		if err == nil {
			err = fmt.Errorf("模型返回空内容")
		}
		logger.Warn().
			Err(err).
			Str("model", name).
			Int("attempt", i+1).
			Int("candidates", len(candidates)).
			Msg("模型调用失败")
		errs = append(errs, fmt.Sprintf("%s: %v", name, err))

		// 上下文已取消时继续换模型重试没有意义
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("调用被取消: %w", ctx.Err())
		}
	}

	return nil, "", fmt.Errorf("所有候选模型调用均失败: %s", strings.Join(errs, "; "))
}
