package models

import (
	"time"

	"gorm.io/datatypes"
)

// AIEvent 记录的生成模式
const (
	ModeSingle   = "single"
	ModeMulti    = "multi"
	ModeSpecific = "specific"
	ModeChain    = "chain"
)

// AIEvent 一次 LLM 生成记录
type AIEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	ThreadID  *uint     `gorm:"index" json:"thread_id"`
	Mode      string    `gorm:"size:20;not null" json:"mode"`
	Persona   string    `gorm:"size:50" json:"persona"`
	OK        bool      `gorm:"default:false" json:"ok"`
	Error     *string   `gorm:"type:text" json:"error,omitempty"`
	LatencyMS int64     `gorm:"default:0" json:"latency_ms"`
}

// 审计事件类型
const (
	EventKillSwitch     = "KILL_SWITCH"
	EventPostCreate     = "POST_CREATE"
	EventPostFlag       = "POST_FLAG"
	EventPostHide       = "POST_HIDE"
	EventThreadLock     = "THREAD_LOCK"
	EventSettingsChange = "SETTINGS_CHANGE"
)

// AuditLog 自动化（或管理员）操作的只追加记录
type AuditLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"index;not null" json:"timestamp"`
	Actor     string         `gorm:"size:50;not null" json:"actor"`
	EventType string         `gorm:"size:32;not null;index" json:"event_type"`
	TargetID  string         `gorm:"size:64;index" json:"target_id"`
	RuleID    *string        `gorm:"size:64" json:"rule_id,omitempty"`
	Reason    string         `gorm:"type:text" json:"reason"`
	InputHash *string        `gorm:"size:64" json:"input_hash,omitempty"`
	Payload   datatypes.JSON `json:"payload,omitempty"`
}

// 事件状态
const (
	IncidentOpen   = "open"
	IncidentClosed = "closed"
)

// AIIncident 待人工处理的审核问题
type AIIncident struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TargetID     string    `gorm:"size:64;not null;index" json:"target_id"`
	ReportReason string    `gorm:"size:200;not null" json:"report_reason"`
	Status       string    `gorm:"size:10;not null;default:open;index" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// AIState AI 学习内容的键值存储
type AIState struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
