package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// defaultChatCompletionsURL OpenRouter的OpenAI兼容端点，可通过配置覆盖为任意兼容服务
	defaultChatCompletionsURL = "https://openrouter.ai/api/v1/chat/completions"

	defaultRequestTimeout = 120 * time.Second
)

// OpenAICompatChatModel 实现 model.ToolCallingChatModel 接口，
// 通过 OpenAI 兼容的 chat/completions API 与任意托管模型交互（OpenRouter等）。
// 单次调用可通过 model.WithModel 覆盖模型名，供主/备模型回退机制复用同一客户端。
type OpenAICompatChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	logger     *log.Logger

	// 默认采样参数，可被单次调用的 model.Option 覆盖
	defaultTemperature float32
	defaultMaxTokens   int
}

// OpenAICompatModelOption 定义配置选项函数类型
type OpenAICompatModelOption func(*OpenAICompatChatModel)

// WithHTTPClient 设置自定义HTTP客户端
func WithHTTPClient(client *http.Client) OpenAICompatModelOption {
	return func(m *OpenAICompatChatModel) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithDefaultTemperature 设置默认采样温度
func WithDefaultTemperature(t float32) OpenAICompatModelOption {
	return func(m *OpenAICompatChatModel) {
		m.defaultTemperature = t
	}
}

// WithDefaultMaxTokens 设置默认输出token上限
func WithDefaultMaxTokens(n int) OpenAICompatModelOption {
	return func(m *OpenAICompatChatModel) {
		if n > 0 {
			m.defaultMaxTokens = n
		}
	}
}

// WithDebugLogger 启用调试日志输出
func WithDebugLogger(debug bool) OpenAICompatModelOption {
	return func(m *OpenAICompatChatModel) {
		if debug {
			m.logger = log.New(os.Stderr, "[OpenAICompatChatModel] ", log.LstdFlags)
		} else {
			m.logger = log.New(io.Discard, "", 0)
		}
	}
}

// NewOpenAICompatChatModel 创建一个新的 OpenAICompatChatModel 实例。
func NewOpenAICompatChatModel(apiKey string, modelName string, apiURL string, opts ...OpenAICompatModelOption) (*OpenAICompatChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("模型名称不能为空")
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = defaultChatCompletionsURL
	}

	m := &OpenAICompatChatModel{
		apiKey:             apiKey,
		modelName:          modelName,
		apiURL:             url,
		httpClient:         &http.Client{Timeout: defaultRequestTimeout},
		logger:             log.New(io.Discard, "", 0),
		defaultTemperature: 0.2,
		defaultMaxTokens:   2048,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// --- OpenAI 兼容请求/响应结构 ---

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float32             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream"`
}

type openAIResponseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"` // tool_calls场景下可能为null
}

type openAIChatChoice struct {
	Index        int                   `json:"index"`
	Message      openAIResponseMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type openAIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type openAIChatCompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Error   *openAIErrorBody   `json:"error,omitempty"`
}

// Generate 实现 model.BaseChatModel 接口。
// 通过 model.WithModel / model.WithTemperature / model.WithMaxTokens 可逐次覆盖默认参数。
func (m *OpenAICompatChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("消息列表不能为空")
	}

	// 合并通用调用选项
	commonOpts := model.GetCommonOptions(&model.Options{}, options...)

	modelName := m.modelName
	if commonOpts.Model != nil && *commonOpts.Model != "" {
		modelName = *commonOpts.Model
	}

	temperature := m.defaultTemperature
	if commonOpts.Temperature != nil {
		temperature = *commonOpts.Temperature
	}

	maxTokens := m.defaultMaxTokens
	if commonOpts.MaxTokens != nil && *commonOpts.MaxTokens > 0 {
		maxTokens = *commonOpts.MaxTokens
	}

	apiMessages := make([]openAIChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		apiMessages = append(apiMessages, openAIChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	reqPayload := openAIChatCompletionRequest{
		Model:       modelName,
		Messages:    apiMessages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	m.logger.Printf("发送请求到 %s，模型 %s", m.apiURL, modelName)

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败 (模型 %s): %w", modelName, err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	m.logger.Printf("收到响应: Status=%s, 长度=%d字节", httpResp.Status, len(bodyBytes))

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败 (模型 %s)，状态 %s: %s", modelName, httpResp.Status, truncateForError(bodyBytes))
	}

	var apiResp openAIChatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, truncateForError(bodyBytes))
	}

	// 部分网关用200状态码携带错误对象返回
	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return nil, fmt.Errorf("API 返回错误 (模型 %s): %s", modelName, apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项 (模型 %s): %s", modelName, truncateForError(bodyBytes))
	}

	apiMessage := apiResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.Assistant
	}

	return resultMessage, nil
}

// Stream 实现 model.BaseChatModel 接口。
// 当前管线全部使用同步调用（stream: false），此方法未实现。
func (m *OpenAICompatChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAICompatChatModel 的 Stream 方法未实现")
}

// WithTools 实现 model.ToolCallingChatModel 接口。
// 技能分析管线不使用工具调用，直接返回自身以满足接口。
func (m *OpenAICompatChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		m.logger.Printf("WithTools 被调用（%d 个工具），当前模型不转发工具定义", len(tools))
	}
	return m, nil
}

var _ model.ToolCallingChatModel = (*OpenAICompatChatModel)(nil)

// truncateForError 截断过长的响应体，避免错误信息里塞进整段LLM输出
func truncateForError(body []byte) string {
	const maxLen = 512
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen] + "...(截断)"
	}
	return s
}
