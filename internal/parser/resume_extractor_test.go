package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/types"
)

// fixedResponseChatModel 返回固定内容的测试替身，同时记录收到的消息和调用选项
type fixedResponseChatModel struct {
	content  string
	err      error
	messages []*schema.Message
	opts     []model.Option
}

func (m *fixedResponseChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.messages = messages
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.content, nil), nil
}

func (m *fixedResponseChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *fixedResponseChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

const sampleResumeText = "Jane Doe. Senior Backend Engineer with 8 years of experience in Go and distributed systems."

func TestExtractProfile_HappyPath(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{
		"name": "Jane Doe",
		"job_role": "Senior Backend Engineer",
		"education": ["B.S. Computer Science, MIT (2012-2016)"],
		"experience": ["Acme Corp (2016-2024): Backend Engineer, built payment systems"],
		"skills": ["Go", "PostgreSQL", "Kafka"]
	}`}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	profile, usedModel, err := extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.NoError(t, err)

	assert.Equal(t, "test-model", usedModel)
	require.NotNil(t, profile.Name)
	assert.Equal(t, "Jane Doe", *profile.Name)
	require.NotNil(t, profile.JobRole)
	assert.Equal(t, "Senior Backend Engineer", *profile.JobRole)
	assert.Equal(t, []string{"Go", "PostgreSQL", "Kafka"}, profile.Skills)
	assert.Len(t, profile.Education, 1)
	assert.Len(t, profile.Experience, 1)

	// 抽取应使用system+user两条消息
	require.Len(t, chat.messages, 2)
	assert.Equal(t, schema.System, chat.messages[0].Role)
	assert.Equal(t, schema.User, chat.messages[1].Role)
	assert.Contains(t, chat.messages[1].Content, sampleResumeText, "user消息应包含简历全文")
}

func TestExtractProfile_StripsCodeFences(t *testing.T) {
	chat := &fixedResponseChatModel{content: "```json\n" + `{
		"name": null,
		"job_role": null,
		"education": [],
		"experience": [],
		"skills": ["Python"]
	}` + "\n```"}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	profile, _, err := extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.NoError(t, err, "围栏包裹的JSON应能正常解析")

	assert.Nil(t, profile.Name, "name为null应映射为nil指针")
	assert.Nil(t, profile.JobRole)
	assert.Empty(t, profile.Education)
	assert.NotNil(t, profile.Education, "空列表应是非nil空切片")
	assert.Equal(t, []string{"Python"}, profile.Skills)
}

func TestExtractProfile_RepairsBrokenQuotes(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{
		"name": "John",
		"job_role": null,
		"education": [],
		"experience": ["Led the "Atlas" project at BigCo"],
		"skills": []
	}`}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	profile, _, err := extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.NoError(t, err, "含未转义引号的JSON应能通过修复重试解析")
	require.Len(t, profile.Experience, 1)
	assert.Contains(t, profile.Experience[0], "Atlas")
}

func TestExtractProfile_MissingKeysIsSchemaViolation(t *testing.T) {
	// 缺少experience和skills键
	chat := &fixedResponseChatModel{content: `{"name": "X", "job_role": null, "education": []}`}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	_, _, err = extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation, "缺少必需键应判定为契约违规")
	assert.Contains(t, err.Error(), "experience")
	assert.Contains(t, err.Error(), "skills")
}

func TestExtractProfile_NonJSONOutput(t *testing.T) {
	chat := &fixedResponseChatModel{content: "I'm sorry, I cannot process this resume."}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	_, _, err = extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedLLMOutput, "非JSON输出应判定为格式错误")
}

func TestExtractProfile_LLMFailure(t *testing.T) {
	chat := &fixedResponseChatModel{err: errors.New("connection refused")}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	_, _, err = extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLMCallFailed, "调用失败应判定为上游错误")
}

func TestExtractProfile_TrimsBlankEntries(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{
		"name": "  ",
		"job_role": "Engineer",
		"education": ["  ", "B.S."],
		"experience": [],
		"skills": ["Go", "", "  SQL  "]
	}`}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	profile, _, err := extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.NoError(t, err)

	assert.Nil(t, profile.Name, "纯空白的name应视为缺失")
	assert.Equal(t, []string{"B.S."}, profile.Education, "空白条目应被清理")
	assert.Equal(t, []string{"Go", "SQL"}, profile.Skills, "条目应去除首尾空白")
}

func TestExtractProfile_SamplingFromOptions(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{"name": null, "job_role": null, "education": [], "experience": [], "skills": []}`}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"},
		WithExtractorTemperature(0.9),
		WithExtractorMaxTokens(4096),
	)
	require.NoError(t, err)

	_, _, err = extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.NoError(t, err)

	o := model.GetCommonOptions(&model.Options{}, chat.opts...)
	require.NotNil(t, o.Temperature)
	assert.InDelta(t, 0.9, *o.Temperature, 0.001, "配置的温度应传到模型调用")
	require.NotNil(t, o.MaxTokens)
	assert.Equal(t, 4096, *o.MaxTokens, "配置的token预算应传到模型调用")
}

func TestExtractProfile_SamplingDefaults(t *testing.T) {
	chat := &fixedResponseChatModel{content: `{"name": null, "job_role": null, "education": [], "experience": [], "skills": []}`}

	extractor, err := NewLLMResumeExtractor(chat, []string{"test-model"})
	require.NoError(t, err)

	_, _, err = extractor.ExtractProfile(context.Background(), sampleResumeText)
	require.NoError(t, err)

	o := model.GetCommonOptions(&model.Options{}, chat.opts...)
	require.NotNil(t, o.Temperature)
	assert.InDelta(t, constants.DefaultLLMTemperature, *o.Temperature, 0.001)
	require.NotNil(t, o.MaxTokens)
	assert.Equal(t, constants.DefaultExtractionMaxTokens, *o.MaxTokens)
}

func TestNewLLMResumeExtractor_Validation(t *testing.T) {
	_, err := NewLLMResumeExtractor(nil, []string{"m"})
	assert.Error(t, err, "nil模型应报错")

	_, err = NewLLMResumeExtractor(&fixedResponseChatModel{}, nil)
	assert.Error(t, err, "空模型名列表应报错")
}

func TestBuildJobQueryPrompt(t *testing.T) {
	role := "Data Engineer"
	profile := &types.CandidateProfile{
		JobRole:    &role,
		Skills:     []string{"Python", "Spark"},
		Education:  []string{"M.S. Data Science"},
		Experience: []string{"ETL pipelines at Acme", "Analytics at BigCo"},
	}

	prompt := BuildJobQueryPrompt(profile)

	assert.Contains(t, prompt, "Target Job Role: Data Engineer")
	assert.Contains(t, prompt, "Key Skills: Python, Spark", "技能应以逗号空格连接")
	assert.Contains(t, prompt, "Educational Background: M.S. Data Science")
	assert.Contains(t, prompt, "Experience: ETL pipelines at Acme | Analytics at BigCo", "经历应以竖线连接")
}

func TestBuildJobQueryPrompt_MissingFieldsUsePlaceholder(t *testing.T) {
	profile := &types.CandidateProfile{
		Skills:     []string{},
		Education:  []string{},
		Experience: []string{},
	}

	prompt := BuildJobQueryPrompt(profile)

	assert.Contains(t, prompt, "Target Job Role: "+constants.NotSpecifiedPlaceholder)
	assert.Contains(t, prompt, "Key Skills: "+constants.NotSpecifiedPlaceholder)
	assert.Contains(t, prompt, "Educational Background: "+constants.NotSpecifiedPlaceholder)
	assert.Contains(t, prompt, "Experience: "+constants.NotSpecifiedPlaceholder)
}
