package store

import (
	"context"
	"time"

	"aibbs/internal/models"
)

// BanIP 添加封禁，duration 为 0 时永久封禁
func (s *Store) BanIP(ctx context.Context, ip, reason string, d time.Duration) (*models.BannedIP, error) {
	now := time.Now().UTC()
	ban := &models.BannedIP{IP: ip, Reason: reason, BannedAt: now}
	if d > 0 {
		exp := now.Add(d)
		ban.ExpiresAt = &exp
	}
	if err := s.with(ctx).Create(ban).Error; err != nil {
		return nil, wrap(err, "ban ip")
	}
	return ban, nil
}

// IsBanned 判断该 IP 在 now 时刻是否处于封禁中
func (s *Store) IsBanned(ctx context.Context, ip string, now time.Time) (bool, error) {
	var n int64
	err := s.with(ctx).Model(&models.BannedIP{}).
		Where("ip = ? AND (expires_at IS NULL OR expires_at > ?)", ip, now).
		Count(&n).Error
	if err != nil {
		return false, wrap(err, "check ban")
	}
	return n > 0, nil
}
