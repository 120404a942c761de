package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"upskill-agent-go/internal/config"
)

// OpenAIEmbedder 实现 cloudwego/eino 的 embedding.Embedder 接口，
// 调用任意OpenAI兼容的 /embeddings 端点。
// 岗位入库与查询向量必须由同一个实例（同模型同维度）生成，否则余弦排序失真。
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
}

// OpenAIEmbedderOption 定义Embedder的配置选项
type OpenAIEmbedderOption func(*OpenAIEmbedder)

// WithEmbedderHTTPClient 设置自定义HTTP客户端
func WithEmbedderHTTPClient(client *http.Client) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithEmbedderDebug 启用调试日志
func WithEmbedderDebug(debug bool) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		if debug {
			e.logger = log.New(os.Stderr, "[OpenAIEmbedder] ", log.LstdFlags|log.Lshortfile)
		} else {
			e.logger = log.New(io.Discard, "", 0)
		}
	}
}

// NewOpenAIEmbedder 创建新的Embedder实例
func NewOpenAIEmbedder(embeddingCfg config.EmbeddingConfig, opts ...OpenAIEmbedderOption) (*OpenAIEmbedder, error) {
	if embeddingCfg.APIKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if embeddingCfg.Model == "" {
		return nil, fmt.Errorf("embedding模型名称不能为空")
	}
	if embeddingCfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding端点URL不能为空")
	}

	timeout := time.Duration(embeddingCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	e := &OpenAIEmbedder{
		apiKey:     embeddingCfg.APIKey,
		model:      embeddingCfg.Model,
		dimensions: embeddingCfg.Dimensions,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    embeddingCfg.BaseURL,
		logger:     log.New(io.Discard, "", 0),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// GetDimensions 返回配置的向量维度（辅助方法，非eino接口成员）
func (e *OpenAIEmbedder) GetDimensions() int {
	return e.dimensions
}

// openAIEmbeddingRequest OpenAI兼容Embedding请求结构
type openAIEmbeddingRequest struct {
	Input          interface{} `json:"input"` // string 或 []string
	Model          string      `json:"model"`
	Dimensions     int         `json:"dimensions,omitempty"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
}

// openAIEmbeddingResponse OpenAI兼容Embedding响应结构
type openAIEmbeddingResponse struct {
	Object string                 `json:"object"`
	Data   []openAIEmbeddingEntry `json:"data"`
	Model  string                 `json:"model"`
	Usage  openAIEmbeddingUsage   `json:"usage"`
	ID     string                 `json:"id,omitempty"`
	Error  *openAIEmbeddingError  `json:"error,omitempty"`
}

type openAIEmbeddingEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// openAIEmbeddingError 部分服务用200状态码携带错误对象返回
type openAIEmbeddingError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本批量转换为向量，实现 embedding.Embedder 接口。
// 返回的向量顺序与输入文本顺序一一对应。
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)

	effectiveModel := e.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := openAIEmbeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if e.dimensions > 0 {
		reqBody.Dimensions = e.dimensions
	}

	e.logger.Printf("Embedding %d texts, model=%s, dimensions=%d", len(texts), effectiveModel, e.dimensions)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError openAIEmbeddingError
		detailedError := fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			detailedError = fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s, Code: %s", resp.StatusCode, apiError.Type, apiError.Message, apiError.Code)
		}
		e.logger.Printf("API call failed: %v", detailedError)
		return nil, detailedError
	}

	var parsedResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}

	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s', Code=%s", parsedResp.Error.Type, parsedResp.Error.Message, parsedResp.Error.Code)
	}

	if len(parsedResp.Data) != len(texts) {
		return nil, fmt.Errorf("向量数量与输入文本数量不一致: 期望 %d, 实际 %d", len(texts), len(parsedResp.Data))
	}

	// 按index归位，不依赖服务端保序
	outputEmbeddings := make([][]float64, len(texts))
	for _, entry := range parsedResp.Data {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, fmt.Errorf("响应中出现越界的向量index: %d", entry.Index)
		}
		outputEmbeddings[entry.Index] = entry.Embedding
	}
	for i, v := range outputEmbeddings {
		if v == nil {
			return nil, fmt.Errorf("响应缺少第 %d 个文本的向量", i)
		}
	}

	e.logger.Printf("Successfully embedded %d texts, dim=%d, total_tokens=%d",
		len(texts), len(outputEmbeddings[0]), parsedResp.Usage.TotalTokens)

	return outputEmbeddings, nil
}

var _ embedding.Embedder = (*OpenAIEmbedder)(nil)
