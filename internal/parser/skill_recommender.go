package parser

import (
	"context"
	"encoding/json"
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

// LLMSkillRecommender 基于候选人画像与检索到的岗位文本生成补强技能清单。
// 检索degrade到空结果时仍可工作：岗位部分填占位符，仅凭画像推荐。
type LLMSkillRecommender struct {
	chatModel   model.ToolCallingChatModel
	modelNames  []string
	temperature float32
	maxTokens   int
	logger      *log.Logger
}

// SkillRecommenderOption 定义推荐器的配置选项
type SkillRecommenderOption func(*LLMSkillRecommender)

// WithRecommenderTemperature 覆盖推荐调用的采样温度
func WithRecommenderTemperature(temperature float64) SkillRecommenderOption {
	return func(r *LLMSkillRecommender) {
		if temperature > 0 {
			r.temperature = float32(temperature)
		}
	}
}

// WithRecommenderMaxTokens 覆盖推荐调用的token预算
func WithRecommenderMaxTokens(maxTokens int) SkillRecommenderOption {
	return func(r *LLMSkillRecommender) {
		if maxTokens > 0 {
			r.maxTokens = maxTokens
		}
	}
}

// WithRecommenderDebug 启用调试日志
func WithRecommenderDebug(debug bool) SkillRecommenderOption {
	return func(r *LLMSkillRecommender) {
		if debug {
			r.logger = log.New(os.Stderr, "[SkillRecommender] ", log.LstdFlags|log.Lshortfile)
		} else {
			r.logger = log.New(io.Discard, "", 0)
		}
	}
}

// NewLLMSkillRecommender 创建技能推荐器
func NewLLMSkillRecommender(chatModel model.ToolCallingChatModel, modelNames []string, opts ...SkillRecommenderOption) (*LLMSkillRecommender, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chatModel不能为nil")
	}
	if len(modelNames) == 0 {
		return nil, fmt.Errorf("至少需要一个候选模型名")
	}

	r := &LLMSkillRecommender{
		chatModel:   chatModel,
		modelNames:  modelNames,
		temperature: float32(constants.DefaultLLMTemperature),
		maxTokens:   constants.DefaultRecommendMaxTokens,
		logger:      log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BuildRecommendPrompt 拼装推荐提示词。
// 连接符约定：技能用", "，教育/经历用" | "，岗位文本用空行；空集合填占位符。
func BuildRecommendPrompt(profile *types.CandidateProfile, jobPostings []string) string {
	skillsStr := constants.NotSpecifiedPlaceholder
	if len(profile.Skills) > 0 {
		skillsStr = strings.Join(profile.Skills, ", ")
	}
	educationStr := constants.NotSpecifiedPlaceholder
	if len(profile.Education) > 0 {
		educationStr = strings.Join(profile.Education, " | ")
	}
	experienceStr := constants.NotSpecifiedPlaceholder
	if len(profile.Experience) > 0 {
		experienceStr = strings.Join(profile.Experience, " | ")
	}
	jobPostingsStr := constants.NoPostingsPlaceholder
	if len(jobPostings) > 0 {
		jobPostingsStr = strings.Join(jobPostings, "\n\n")
	}

	return fmt.Sprintf(recommendSkillsPromptTemplate, skillsStr, educationStr, experienceStr, jobPostingsStr)
}

// RecommendSkills 生成技能推荐。
// 返回值保证非nil且长度不超过 MaxRecommendedSkills；空清单属于合法输出（候选人已无短板）。
func (r *LLMSkillRecommender) RecommendSkills(ctx context.Context, profile *types.CandidateProfile, jobPostings []string) (*types.SkillRecommendation, string, error) {
	if profile == nil {
		return nil, "", fmt.Errorf("候选人画像不能为nil")
	}

	prompt := BuildRecommendPrompt(profile, jobPostings)
	messages := []*schema.Message{
		schema.UserMessage(prompt),
	}

	resp, usedModel, err := agent.GenerateWithModelFallback(ctx, r.chatModel, messages, r.modelNames,
		model.WithTemperature(r.temperature),
		model.WithMaxTokens(r.maxTokens),
	)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrLLMCallFailed, err)
	}

	rec, err := r.parseRecommendationResponse(resp.Content)
	if err != nil {
		return nil, usedModel, err
	}

	r.logger.Printf("推荐成功 (模型=%s): %d 个技能", usedModel, len(rec.RecommendedSkills))
	return rec, usedModel, nil
}

// parseRecommendationResponse 解析并校验推荐输出
func (r *LLMSkillRecommender) parseRecommendationResponse(content string) (*types.SkillRecommendation, error) {
	cleaned := stripCodeFences(content)
	jsonStr := extractJSONObject(cleaned)
	if jsonStr == "" {
		r.logger.Printf("响应中找不到JSON对象。原始输出:\n%s", content)
		return nil, fmt.Errorf("%w: 响应中找不到JSON对象", ErrMalformedLLMOutput)
	}

	var raw struct {
		RecommendedSkills *[]string `json:"recommended_skills"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		repaired := sanitizeJSON(jsonStr)
		if err2 := json.Unmarshal([]byte(repaired), &raw); err2 != nil {
			r.logger.Printf("JSON解析失败（含修复重试）。原始输出:\n%s", content)
			return nil, fmt.Errorf("%w: %v", ErrMalformedLLMOutput, err)
		}
	}

	if raw.RecommendedSkills == nil {
		return nil, fmt.Errorf("%w: 缺少字段 recommended_skills", ErrSchemaViolation)
	}

	skills := cleanStringList(*raw.RecommendedSkills)

	// 提示词要求不超过9个，模型超了就截断而不是报错
	if len(skills) > constants.MaxRecommendedSkills {
		r.logger.Printf("模型返回 %d 个技能，截断至 %d", len(skills), constants.MaxRecommendedSkills)
		skills = skills[:constants.MaxRecommendedSkills]
	}

	return &types.SkillRecommendation{RecommendedSkills: skills}, nil
}
