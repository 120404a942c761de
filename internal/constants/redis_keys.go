package constants

// Redis Key 前缀和格式常量
// 统一命名规范: upskill:{module}:{entity}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "upskill"

	// CorpusModulePrefix 岗位语料模块
	CorpusModulePrefix = "corpus"
	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"

	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"

	// KeyChunkMD5Set 岗位分块内容MD5集合，加载器用于跳过已入库的分块 (SET)
	// 格式: upskill:corpus:dedup_set
	KeyChunkMD5Set = AppPrefix + ":" + CorpusModulePrefix + ":" + EntityDedupSet

	// KeyResumeMD5Set 简历原始文件MD5集合，用于重复上传检测 (SET)
	// 格式: upskill:resume:dedup_set
	KeyResumeMD5Set = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityDedupSet
)
