package types

// CandidateProfile 从单份简历中抽取出的结构化候选人信息。
// 四个集合字段保证非nil（未识别到条目时为空切片）；Name/JobRole缺失时为nil指针，
// 不使用空字符串表示缺失。
type CandidateProfile struct {
	Name       *string  `json:"name"`
	JobRole    *string  `json:"job_role"`
	Education  []string `json:"education"`
	Experience []string `json:"experience"`
	Skills     []string `json:"skills"`
}

// NameOr 返回姓名，缺失时返回占位符
func (p *CandidateProfile) NameOr(placeholder string) string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return placeholder
}

// JobRoleOr 返回岗位角色，缺失时返回占位符
func (p *CandidateProfile) JobRoleOr(placeholder string) string {
	if p.JobRole != nil && *p.JobRole != "" {
		return *p.JobRole
	}
	return placeholder
}

// SkillRecommendation 推荐阶段的输出：最多9个新技能名
type SkillRecommendation struct {
	RecommendedSkills []string `json:"recommended_skills"`
}

// JobChunk 岗位语料的入库单元：带标题上下文的词数受限分块
type JobChunk struct {
	// ChunkID 内容MD5，点ID由它派生，保证重复入库幂等
	ChunkID string `json:"chunk_id"`
	// Text 分块正文，已带 "Job Title: ...\nDescription: ..." 前缀
	Text string `json:"text"`
	// Title 来源岗位标题
	Title string `json:"title"`
	// JobID 来源岗位ID（语料库内稳定）
	JobID string `json:"job_id"`
	// Category 岗位类别（可为空）
	Category string `json:"category"`
	// ChunkIndex 在原岗位描述中的分块序号，从0开始
	ChunkIndex int `json:"chunk_index"`
	// WordCount 分块词数（含前缀）
	WordCount int `json:"word_count"`
}

// RetrievedJob 检索阶段返回的单条结果
type RetrievedJob struct {
	// Text 命中的分块文本
	Text string `json:"text"`
	// Title 岗位标题
	Title string `json:"title"`
	// Score 相似度分数（余弦，越大越相似）
	Score float32 `json:"score"`
	// Metadata 入库时附带的全部载荷
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// JobPostingMessage 队列模式下语料加载器消费的岗位消息
type JobPostingMessage struct {
	JobID       string `json:"job_id,omitempty"`
	Title       string `json:"title"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
}
