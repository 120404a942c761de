package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"upskill-agent-go/internal/agent"
	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/types"
)

// 组件级哨兵错误，供上层按 errors.Is 分类处理
var (
	// ErrLLMCallFailed 模型调用本身失败（网络/限流/全部候选模型失败）
	ErrLLMCallFailed = errors.New("LLM调用失败")
	// ErrMalformedLLMOutput 模型返回了无法解析为JSON的内容
	ErrMalformedLLMOutput = errors.New("LLM输出无法解析为JSON")
	// ErrSchemaViolation 模型返回了合法JSON但不符合约定的字段结构
	ErrSchemaViolation = errors.New("LLM输出不符合约定结构")
)

// LLMResumeExtractor 用LLM从简历纯文本中抽取结构化候选人画像。
// 同一抽取请求按 modelNames 顺序回退重试，全部失败才报错。
type LLMResumeExtractor struct {
	chatModel   model.ToolCallingChatModel
	modelNames  []string
	temperature float32
	maxTokens   int
	logger      *log.Logger
}

// ResumeExtractorOption 定义抽取器的配置选项
type ResumeExtractorOption func(*LLMResumeExtractor)

// WithExtractorTemperature 覆盖抽取调用的采样温度
func WithExtractorTemperature(temperature float64) ResumeExtractorOption {
	return func(e *LLMResumeExtractor) {
		if temperature > 0 {
			e.temperature = float32(temperature)
		}
	}
}

// WithExtractorMaxTokens 覆盖抽取调用的token预算
func WithExtractorMaxTokens(maxTokens int) ResumeExtractorOption {
	return func(e *LLMResumeExtractor) {
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
	}
}

// WithExtractorDebug 启用调试日志
func WithExtractorDebug(debug bool) ResumeExtractorOption {
	return func(e *LLMResumeExtractor) {
		if debug {
			e.logger = log.New(os.Stderr, "[ResumeExtractor] ", log.LstdFlags|log.Lshortfile)
		} else {
			e.logger = log.New(io.Discard, "", 0)
		}
	}
}

// NewLLMResumeExtractor 创建简历抽取器。
// modelNames 第一个为主模型，其余为备用模型。
func NewLLMResumeExtractor(chatModel model.ToolCallingChatModel, modelNames []string, opts ...ResumeExtractorOption) (*LLMResumeExtractor, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chatModel不能为nil")
	}
	if len(modelNames) == 0 {
		return nil, fmt.Errorf("至少需要一个候选模型名")
	}

	e := &LLMResumeExtractor{
		chatModel:   chatModel,
		modelNames:  modelNames,
		temperature: float32(constants.DefaultLLMTemperature),
		maxTokens:   constants.DefaultExtractionMaxTokens,
		logger:      log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// rawProfile 反序列化中间结构：先校验键的存在性和类型，再转成领域类型
type rawProfile struct {
	Name       *string   `json:"name"`
	JobRole    *string   `json:"job_role"`
	Education  *[]string `json:"education"`
	Experience *[]string `json:"experience"`
	Skills     *[]string `json:"skills"`
}

// ExtractProfile 从简历文本抽取候选人画像。
// 返回实际生效的模型名用于日志与响应元数据。
func (e *LLMResumeExtractor) ExtractProfile(ctx context.Context, resumeText string) (*types.CandidateProfile, string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(resumeExtractionSystemPrompt),
		schema.UserMessage(fmt.Sprintf(resumeExtractionUserTemplate, resumeText)),
	}

	resp, usedModel, err := agent.GenerateWithModelFallback(ctx, e.chatModel, messages, e.modelNames,
		model.WithTemperature(e.temperature),
		model.WithMaxTokens(e.maxTokens),
	)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrLLMCallFailed, err)
	}

	profile, err := e.parseProfileResponse(resp.Content)
	if err != nil {
		return nil, usedModel, err
	}

	e.logger.Printf("抽取成功 (模型=%s): name=%v, job_role=%v, %d education, %d experience, %d skills",
		usedModel, profile.Name != nil, profile.JobRole != nil,
		len(profile.Education), len(profile.Experience), len(profile.Skills))

	return profile, usedModel, nil
}

// parseProfileResponse 解析并校验LLM的抽取输出。
// 解析失败时先做一轮引号修复再重试，仍失败才判定为契约违规。
func (e *LLMResumeExtractor) parseProfileResponse(content string) (*types.CandidateProfile, error) {
	cleaned := stripCodeFences(content)
	jsonStr := extractJSONObject(cleaned)
	if jsonStr == "" {
		e.logger.Printf("响应中找不到JSON对象。原始输出:\n%s", content)
		return nil, fmt.Errorf("%w: 响应中找不到JSON对象", ErrMalformedLLMOutput)
	}

	var raw rawProfile
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		// 常见故障是字符串值里出现未转义的双引号，修复后重试一次
		repaired := sanitizeJSON(jsonStr)
		if err2 := json.Unmarshal([]byte(repaired), &raw); err2 != nil {
			e.logger.Printf("JSON解析失败（含修复重试）。原始输出:\n%s", content)
			return nil, fmt.Errorf("%w: %v", ErrMalformedLLMOutput, err)
		}
	}

	// 五个键必须全部出现。nil指针区分"键缺失"与"值为null/空"
	var missing []string
	if raw.Education == nil {
		missing = append(missing, "education")
	}
	if raw.Experience == nil {
		missing = append(missing, "experience")
	}
	if raw.Skills == nil {
		missing = append(missing, "skills")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: 缺少字段 %s", ErrSchemaViolation, strings.Join(missing, ", "))
	}

	profile := &types.CandidateProfile{
		Name:       normalizeOptionalString(raw.Name),
		JobRole:    normalizeOptionalString(raw.JobRole),
		Education:  cleanStringList(*raw.Education),
		Experience: cleanStringList(*raw.Experience),
		Skills:     cleanStringList(*raw.Skills),
	}

	return profile, nil
}

// normalizeOptionalString 空串与null同样视为缺失
func normalizeOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// cleanStringList 去掉空白条目并保证返回非nil切片
func cleanStringList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
