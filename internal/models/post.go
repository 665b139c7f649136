package models

import (
	"time"
)

// 支持的版面语言
const (
	LangJP = "jp"
	LangEN = "en"
)

const (
	MaxContentLength = 2000
	MaxNameLength    = 50

	// AIPosterID AI 发帖使用的 poster id
	AIPosterID = "AI_BOT"
)

// Post 帖子。ThreadID 相同的帖子组成一个主题，ThreadID 即首帖 ID（首帖自身回填）
type Post struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Language string  `gorm:"size:5;not null;default:jp;index" json:"language"`
	Name     string  `gorm:"size:50;not null;index" json:"name"`
	Persona  *string `gorm:"size:50" json:"persona,omitempty"`      // AI 人格名
	GenID    *string `gorm:"size:36;index" json:"gen_id,omitempty"` // 同一批生成
	Depth    int     `gorm:"default:0" json:"depth"`                // 0 用户，1 AI 回复，2+ 链式回复
	Number   int     `gorm:"default:0;index" json:"number"`         // 楼层号
	Title    string  `gorm:"size:120" json:"title,omitempty"`       // 仅首帖
	Content  string  `gorm:"type:text;not null" json:"content"`
	PosterID string  `gorm:"size:16;index" json:"poster_id"`

	IsAI     bool     `gorm:"default:false;index" json:"is_ai"`
	AIRole   *string  `gorm:"size:32" json:"ai_role,omitempty"`
	AIScore  *float64 `json:"ai_score,omitempty"`
	AIReason *string  `gorm:"size:200" json:"ai_reason,omitempty"`

	ReplyToID *uint `gorm:"index" json:"reply_to_id"`
	ThreadID  *uint `gorm:"index" json:"thread_id"`

	IsHidden bool `gorm:"default:false" json:"is_hidden"`
	IsLocked bool `gorm:"default:false" json:"is_locked"` // 仅首帖有效

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// RootID 帖子所属主题
func (p *Post) RootID() uint {
	if p.ThreadID != nil {
		return *p.ThreadID
	}
	return p.ID
}

// IsRoot 是否为主题首帖
func (p *Post) IsRoot() bool {
	return p.ThreadID == nil || *p.ThreadID == p.ID
}

// ValidLanguage 是否为支持的版面语言
func ValidLanguage(lang string) bool {
	return lang == LangJP || lang == LangEN
}
