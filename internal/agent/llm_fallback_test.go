package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChatModel 按模型名返回预设结果的测试替身
type scriptedChatModel struct {
	responses map[string]*schema.Message // 按模型名索引
	errors    map[string]error
	calls     []string // 记录实际被调用的模型名顺序
}

func (m *scriptedChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)
	name := ""
	if options.Model != nil {
		name = *options.Model
	}
	m.calls = append(m.calls, name)

	if err, ok := m.errors[name]; ok {
		return nil, err
	}
	if resp, ok := m.responses[name]; ok {
		return resp, nil
	}
	return nil, errors.New("未预设的模型名: " + name)
}

func (m *scriptedChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *scriptedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestGenerateWithModelFallback_PrimarySucceeds(t *testing.T) {
	chat := &scriptedChatModel{
		responses: map[string]*schema.Message{
			"primary": schema.AssistantMessage("primary answer", nil),
		},
	}

	resp, usedModel, err := GenerateWithModelFallback(context.Background(), chat,
		[]*schema.Message{schema.UserMessage("hi")}, []string{"primary", "backup"})

	require.NoError(t, err)
	assert.Equal(t, "primary answer", resp.Content)
	assert.Equal(t, "primary", usedModel, "应返回实际生效的模型名")
	assert.Equal(t, []string{"primary"}, chat.calls, "主模型成功时不应触发备用模型")
}

func TestGenerateWithModelFallback_FallsBackOnError(t *testing.T) {
	chat := &scriptedChatModel{
		errors: map[string]error{
			"primary": errors.New("rate limited"),
		},
		responses: map[string]*schema.Message{
			"backup": schema.AssistantMessage("backup answer", nil),
		},
	}

	resp, usedModel, err := GenerateWithModelFallback(context.Background(), chat,
		[]*schema.Message{schema.UserMessage("hi")}, []string{"primary", "backup"})

	require.NoError(t, err)
	assert.Equal(t, "backup answer", resp.Content)
	assert.Equal(t, "backup", usedModel)
	assert.Equal(t, []string{"primary", "backup"}, chat.calls, "应按顺序回退")
}

func TestGenerateWithModelFallback_EmptyContentTreatedAsFailure(t *testing.T) {
	chat := &scriptedChatModel{
		responses: map[string]*schema.Message{
			"primary": schema.AssistantMessage("   ", nil),
			"backup":  schema.AssistantMessage("real answer", nil),
		},
	}

	resp, usedModel, err := GenerateWithModelFallback(context.Background(), chat,
		[]*schema.Message{schema.UserMessage("hi")}, []string{"primary", "backup"})

	require.NoError(t, err)
	assert.Equal(t, "real answer", resp.Content)
	assert.Equal(t, "backup", usedModel, "空白内容应视为失败并回退")
}

func TestGenerateWithModelFallback_AllFail(t *testing.T) {
	chat := &scriptedChatModel{
		errors: map[string]error{
			"primary": errors.New("timeout"),
			"backup":  errors.New("server error"),
		},
	}

	_, _, err := GenerateWithModelFallback(context.Background(), chat,
		[]*schema.Message{schema.UserMessage("hi")}, []string{"primary", "backup"})

	require.Error(t, err, "全部候选失败时应返回错误")
	assert.Contains(t, err.Error(), "primary")
	assert.Contains(t, err.Error(), "backup")
}

func TestGenerateWithModelFallback_SkipsBlankNames(t *testing.T) {
	chat := &scriptedChatModel{
		responses: map[string]*schema.Message{
			"only": schema.AssistantMessage("answer", nil),
		},
	}

	_, usedModel, err := GenerateWithModelFallback(context.Background(), chat,
		[]*schema.Message{schema.UserMessage("hi")}, []string{"", "only", "  "})

	require.NoError(t, err)
	assert.Equal(t, "only", usedModel, "空白模型名应被跳过")
	assert.Equal(t, []string{"only"}, chat.calls)
}

func TestGenerateWithModelFallback_NoCandidates(t *testing.T) {
	chat := &scriptedChatModel{}

	_, _, err := GenerateWithModelFallback(context.Background(), chat,
		[]*schema.Message{schema.UserMessage("hi")}, []string{"", "  "})

	require.Error(t, err, "没有有效候选模型时应直接报错")
	assert.Empty(t, chat.calls)
}
