package parser

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"upskill-agent-go/internal/constants"
	"upskill-agent-go/internal/types"
)

// 岗位描述清洗规则。语料来自网页抓取，带有大量不可见字符和花式项目符号，
// 不清洗会污染分词和向量质量。
var (
	// 零宽字符 (zero-width space/joiner, BOM)
	invisibleCharsRe = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)
	// 控制字符，保留 \n \r \t
	controlCharsRe = regexp.MustCompile(`[\x{0000}-\x{0008}\x{000B}\x{000C}\x{000E}-\x{001F}\x{007F}-\x{009F}]`)
	// 连续空行压缩
	multiNewlineRe = regexp.MustCompile(`\n+`)
	// 行内连续空白压缩
	inlineSpaceRe = regexp.MustCompile(`[ \t]+`)
	multiSpaceRe  = regexp.MustCompile(`\s{2,}`)
	// 常见项目符号统一替换为 "-"
	bulletCharsRe = regexp.MustCompile(`[\x{2022}\x{2023}\x{25E6}\x{2043}\x{2219}\x{25AA}\x{25AB}]`)
	// 部分语料把 " o " 当项目符号用
	letterBulletRe = regexp.MustCompile(`\so\s`)
)

// JobDescriptionChunker 把单条岗位描述切分为带标题上下文的定长词块。
// 每个分块以 "Job Title: {title}\nDescription: {chunk}" 格式入库，
// 保证孤立分块在检索命中时仍然携带岗位身份。
type JobDescriptionChunker struct {
	maxWordCount int
}

// NewJobDescriptionChunker 创建分块器。maxWordCount<=0 时使用默认值。
func NewJobDescriptionChunker(maxWordCount int) *JobDescriptionChunker {
	if maxWordCount <= 0 {
		maxWordCount = constants.DefaultChunkMaxWords
	}
	return &JobDescriptionChunker{maxWordCount: maxWordCount}
}

// NormalizeDescription 清洗原始岗位描述文本。
// 顺序敏感：先删不可见字符，再压缩空白，最后统一项目符号。
func NormalizeDescription(description string) string {
	description = invisibleCharsRe.ReplaceAllString(description, "")
	description = controlCharsRe.ReplaceAllString(description, "")

	description = multiNewlineRe.ReplaceAllString(description, "\n")
	description = inlineSpaceRe.ReplaceAllString(description, " ")
	description = multiSpaceRe.ReplaceAllString(description, " ")

	description = bulletCharsRe.ReplaceAllString(description, "\n-")
	description = strings.ReplaceAll(description, "â€¢", "\n-")
	description = letterBulletRe.ReplaceAllString(description, "\n-")

	return description
}

// ChunkJob 把一条岗位记录切分为入库单元。
// 空描述返回空切片而不是错误；ChunkID 是分块全文的MD5，重复入库时可据此幂等去重。
func (c *JobDescriptionChunker) ChunkJob(jobID, title, category, description string) []types.JobChunk {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if description == "" {
		return []types.JobChunk{}
	}

	normalized := NormalizeDescription(description)
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return []types.JobChunk{}
	}

	chunks := make([]types.JobChunk, 0, (len(words)+c.maxWordCount-1)/c.maxWordCount)
	for i := 0; i < len(words); i += c.maxWordCount {
		end := i + c.maxWordCount
		if end > len(words) {
			end = len(words)
		}
		chunkBody := strings.Join(words[i:end], " ")

		// 每个分块都带上标题上下文
		formatted := fmt.Sprintf("Job Title: %s\nDescription: %s", title, chunkBody)

		sum := md5.Sum([]byte(formatted))
		chunks = append(chunks, types.JobChunk{
			ChunkID:    hex.EncodeToString(sum[:]),
			Text:       formatted,
			Title:      title,
			JobID:      jobID,
			Category:   category,
			ChunkIndex: i / c.maxWordCount,
			WordCount:  len(strings.Fields(formatted)),
		})
	}

	return chunks
}
