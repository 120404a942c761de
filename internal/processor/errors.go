package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型。API层按 errors.Is 把它们映射为HTTP状态码：
// 输入类 -> 400，重复上传 -> 409，上游服务类 -> 502，其余 -> 500。
var (
	// ErrInvalidInput 调用方的输入有问题：非PDF、PDF解析不出文本、文本过短
	ErrInvalidInput = errors.New("输入无效")
	// ErrDuplicateResume 同一份简历在去重窗口内重复提交
	ErrDuplicateResume = errors.New("简历重复提交")
	// ErrUpstreamService 上游服务（LLM/Embedding）调用失败，主备模型均未成功
	ErrUpstreamService = errors.New("上游服务调用失败")
	// ErrContractViolation 上游返回了内容但不符合约定的JSON结构
	ErrContractViolation = errors.New("上游输出违反契约")
	// ErrEmptyCorpus 语料库为空，检索无从谈起（仅语料加载/状态检查使用）
	ErrEmptyCorpus = errors.New("岗位语料库为空")
	// ErrStorageFailed 存储层操作失败
	ErrStorageFailed = errors.New("存储操作失败")
)

// AnalysisError 包含详细错误信息的自定义错误
type AnalysisError struct {
	AnalysisID string
	Stage      string
	BaseErr    error
	Detail     string
}

func (e *AnalysisError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (阶段:%s, 分析ID:%s): %s", e.BaseErr, e.Stage, e.AnalysisID, e.Detail)
	}
	return fmt.Sprintf("%s (阶段:%s, 分析ID:%s)", e.BaseErr, e.Stage, e.AnalysisID)
}

func (e *AnalysisError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AnalysisError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewInputError(analysisID, detail string) error {
	return &AnalysisError{
		AnalysisID: analysisID,
		Stage:      "validate_input",
		BaseErr:    ErrInvalidInput,
		Detail:     detail,
	}
}

func NewDuplicateError(analysisID, detail string) error {
	return &AnalysisError{
		AnalysisID: analysisID,
		Stage:      "dedup_check",
		BaseErr:    ErrDuplicateResume,
		Detail:     detail,
	}
}

func NewUpstreamError(analysisID, stage, detail string) error {
	return &AnalysisError{
		AnalysisID: analysisID,
		Stage:      stage,
		BaseErr:    ErrUpstreamService,
		Detail:     detail,
	}
}

func NewContractError(analysisID, stage, detail string) error {
	return &AnalysisError{
		AnalysisID: analysisID,
		Stage:      stage,
		BaseErr:    ErrContractViolation,
		Detail:     detail,
	}
}

func NewStorageError(analysisID, stage, detail string) error {
	return &AnalysisError{
		AnalysisID: analysisID,
		Stage:      stage,
		BaseErr:    ErrStorageFailed,
		Detail:     detail,
	}
}
