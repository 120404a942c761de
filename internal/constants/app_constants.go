package constants

import "time"

const (
	// MinResumeTextLength 低于该字符数的解析文本视为无效简历（图片型/加密/损坏PDF）
	MinResumeTextLength = 50

	// DefaultTopK 检索相似岗位的默认返回数量
	DefaultTopK = 5

	// DefaultChunkMaxWords 岗位描述分块的默认单块最大词数
	DefaultChunkMaxWords = 100

	// DefaultEmbedBatchSize 批量Embedding的默认批次大小
	DefaultEmbedBatchSize = 100

	// MaxRecommendedSkills 技能推荐结果的上限（解析后强制截断）
	MaxRecommendedSkills = 9

	// NotSpecifiedPlaceholder 候选人字段缺失时填入查询/提示词模板的占位符
	NotSpecifiedPlaceholder = "Not specified"

	// NoPostingsPlaceholder 检索结果为空时填入推荐提示词的占位符
	NoPostingsPlaceholder = "Not available"

	// DefaultLLMTemperature 结构化抽取与推荐调用统一使用的低温度
	DefaultLLMTemperature = 0.2

	// DefaultExtractionMaxTokens 简历抽取的token预算（简历较长，给足余量）
	DefaultExtractionMaxTokens = 2048

	// DefaultRecommendMaxTokens 技能推荐的token预算（输出很短）
	DefaultRecommendMaxTokens = 512

	// ResumeMD5ExpireDuration 简历原始文件MD5去重记录的过期时间
	ResumeMD5ExpireDuration = 7 * 24 * time.Hour
)
