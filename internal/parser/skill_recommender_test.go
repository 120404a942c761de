package parser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/types"
)

func fullProfile() *types.CandidateProfile {
	name := "Jane Doe"
	role := "Backend Engineer"
	return &types.CandidateProfile{
		Name:       &name,
		JobRole:    &role,
		Education:  []string{"B.S. CS, MIT", "M.S. CS, Stanford"},
		Experience: []string{"Acme: built APIs", "BigCo: ran migrations"},
		Skills:     []string{"Go", "SQL"},
	}
}

func TestBuildRecommendPrompt_Joins(t *testing.T) {
	prompt := BuildRecommendPrompt(fullProfile(), []string{"posting one", "posting two"})

	assert.Contains(t, prompt, "Go, SQL", "技能应以逗号空格连接")
	assert.Contains(t, prompt, "B.S. CS, MIT | M.S. CS, Stanford", "教育应以竖线连接")
	assert.Contains(t, prompt, "Acme: built APIs | BigCo: ran migrations", "经历应以竖线连接")
	assert.Contains(t, prompt, "posting one\n\nposting two", "岗位文本应以空行分隔")
}

func TestBuildRecommendPrompt_Placeholders(t *testing.T) {
	empty := &types.CandidateProfile{
		Education:  []string{},
		Experience: []string{},
		Skills:     []string{},
	}

	prompt := BuildRecommendPrompt(empty, nil)

	assert.Contains(t, prompt, "User's Current Skills:\n"+constants.NotSpecifiedPlaceholder)
	assert.Contains(t, prompt, "User's Education:\n"+constants.NotSpecifiedPlaceholder)
	assert.Contains(t, prompt, "User's Experience:\n"+constants.NotSpecifiedPlaceholder)
	assert.Contains(t, prompt, constants.NoPostingsPlaceholder, "无检索结果时岗位部分应填占位符")
}

func TestRecommendSkills_HappyPath(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{"recommended_skills": ["Kubernetes", "Terraform", "gRPC"]}`}

	recommender, err := NewLLMSkillRecommender(chat, []string{"test-model"})
	require.NoError(t, err)

	rec, usedModel, err := recommender.RecommendSkills(context.Background(), fullProfile(), []string{"posting"})
	require.NoError(t, err)

	assert.Equal(t, "test-model", usedModel)
	assert.Equal(t, []string{"Kubernetes", "Terraform", "gRPC"}, rec.RecommendedSkills)

	// 推荐调用只使用单条user消息
	require.Len(t, chat.messages, 1)
	assert.Equal(t, schema.User, chat.messages[0].Role)
}

func TestRecommendSkills_TruncatesToLimit(t *testing.T) {
	skills := make([]string, 12)
	for i := range skills {
		skills[i] = fmt.Sprintf("skill-%d", i)
	}
	body, err := jsonList(skills)
	require.NoError(t, err)
	chat := &fixedResponseChatModel{content: `{"recommended_skills": ` + body + `}`}

	recommender, err := NewLLMSkillRecommender(chat, []string{"test-model"})
	require.NoError(t, err)

	rec, _, err := recommender.RecommendSkills(context.Background(), fullProfile(), nil)
	require.NoError(t, err)

	assert.Len(t, rec.RecommendedSkills, constants.MaxRecommendedSkills, "超出上限的技能应被截断")
	assert.Equal(t, "skill-0", rec.RecommendedSkills[0], "截断应保留前面的条目")
}

func TestRecommendSkills_EmptyListIsValid(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{"recommended_skills": []}`}

	recommender, err := NewLLMSkillRecommender(chat, []string{"test-model"})
	require.NoError(t, err)

	rec, _, err := recommender.RecommendSkills(context.Background(), fullProfile(), nil)
	require.NoError(t, err, "空推荐清单是合法输出")
	assert.Empty(t, rec.RecommendedSkills)
	assert.NotNil(t, rec.RecommendedSkills, "应返回非nil空切片")
}

func TestRecommendSkills_NullListIsSchemaViolation(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{"recommended_skills": null}`}

	recommender, err := NewLLMSkillRecommender(chat, []string{"test-model"})
	require.NoError(t, err)

	_, _, err = recommender.RecommendSkills(context.Background(), fullProfile(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation, "recommended_skills为null应判定为契约违规")
}

func TestRecommendSkills_LLMFailure(t *testing.T) {
	chat := &fixedResponseChatModel{err: errors.New("upstream down")}

	recommender, err := NewLLMSkillRecommender(chat, []string{"test-model"})
	require.NoError(t, err)

	_, _, err = recommender.RecommendSkills(context.Background(), fullProfile(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLMCallFailed)
}

func TestRecommendSkills_SamplingFromOptions(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{"recommended_skills": []}`}

	recommender, err := NewLLMSkillRecommender(chat, []string{"test-model"},
		WithRecommenderTemperature(0.5),
		WithRecommenderMaxTokens(1024),
	)
	require.NoError(t, err)

	_, _, err = recommender.RecommendSkills(context.Background(), fullProfile(), nil)
	require.NoError(t, err)

	o := model.GetCommonOptions(&model.Options{}, chat.opts...)
	require.NotNil(t, o.Temperature)
	assert.InDelta(t, 0.5, *o.Temperature, 0.001, "配置的温度应传到模型调用")
	require.NotNil(t, o.MaxTokens)
	assert.Equal(t, 1024, *o.MaxTokens, "配置的token预算应传到模型调用")
}

func TestRecommendSkills_NilProfile(t *testing.T) {
	recommender, err := NewLLMSkillRecommender(&fixedResponseChatModel{}, []string{"test-model"})
	require.NoError(t, err)

	_, _, err = recommender.RecommendSkills(context.Background(), nil, nil)
	assert.Error(t, err, "nil画像应直接报错")
}

// jsonList 把字符串切片序列化为JSON数组字面量
func jsonList(items []string) (string, error) {
	out := "["
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += `"` + item + `"`
	}
	return out + "]", nil
}
