package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobPosting 岗位语料主表。
// 向量库里只存分块文本，完整描述和摄取状态在这里；
// JobID 与 Qdrant 分块payload中的 job_id 对应。
type JobPosting struct {
	JobID           string         `gorm:"type:char(36);primaryKey"`
	Title           string         `gorm:"type:varchar(255);not null"`
	Category        string         `gorm:"type:varchar(100);index:idx_job_postings_category"`
	DescriptionText string         `gorm:"type:text;not null"`
	ChunkCount      int            `gorm:"type:int;default:0"`
	ChunkIDsJSON    datatypes.JSON `gorm:"type:json"` // 分块MD5列表，便于按岗位清理向量
	Source          string         `gorm:"type:varchar(100)"`
	Status          string         `gorm:"type:varchar(50);default:'PENDING';index:idx_job_postings_status"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// 岗位摄取状态
const (
	JobStatusPending  = "PENDING"
	JobStatusIndexed  = "INDEXED"
	JobStatusSkipped  = "SKIPPED" // 全部分块都已存在
	JobStatusFailed   = "FAILED"
	RunStatusRunning  = "RUNNING"
	RunStatusFinished = "FINISHED"
	RunStatusFailed   = "FAILED"
)

// IngestionRun 一次语料加载的审计记录（CSV批量或队列消费周期）
type IngestionRun struct {
	RunID          string         `gorm:"type:char(36);primaryKey"`
	SourceType     string         `gorm:"type:varchar(50);not null"` // csv / rabbitmq
	SourceDetail   string         `gorm:"type:varchar(1024)"`        // 文件路径或队列名
	JobsTotal      int            `gorm:"type:int;default:0"`
	JobsIndexed    int            `gorm:"type:int;default:0"`
	ChunksTotal    int            `gorm:"type:int;default:0"`
	ChunksUpserted int            `gorm:"type:int;default:0"`
	ChunksSkipped  int            `gorm:"type:int;default:0"`
	ErrorsJSON     datatypes.JSON `gorm:"type:json"` // 逐岗位错误摘要
	Status         string         `gorm:"type:varchar(50);default:'RUNNING';index:idx_ingestion_runs_status"`
	StartedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	FinishedAt     *time.Time     `gorm:"type:datetime(6)"`
}

func (IngestionRun) TableName() string {
	return "ingestion_runs"
}
