package models

import (
	"time"
)

type BannedIP struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	IP        string     `gorm:"size:64;not null;index" json:"ip"`
	Reason    string     `gorm:"size:200" json:"reason"`
	BannedAt  time.Time  `json:"banned_at"`
	ExpiresAt *time.Time `json:"expires_at"` // nil 表示永久
}

// Active 在 t 时刻封禁是否仍然有效
func (b *BannedIP) Active(t time.Time) bool {
	return b.ExpiresAt == nil || t.Before(*b.ExpiresAt)
}
