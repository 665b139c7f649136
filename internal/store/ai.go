package store

import (
	"context"
	"time"

	"aibbs/internal/models"

	"gorm.io/gorm/clause"
)

func (s *Store) CreateAIEvent(ctx context.Context, ev *models.AIEvent) error {
	return wrap(s.with(ctx).Create(ev).Error, "create ai event")
}

// AIEvents 生成记录列表，最新的在前
func (s *Store) AIEvents(ctx context.Context, limit int) ([]models.AIEvent, error) {
	var evs []models.AIEvent
	err := s.with(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&evs).Error
	return evs, wrap(err, "list ai events")
}

// CreateAuditLog 在独立事务中追加一条审计日志
func (s *Store) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.Transaction(ctx, func(tx *Store) error {
		return wrap(tx.with(ctx).Create(entry).Error, "create audit log")
	})
}

// AuditLogs 按时间正序列出审计日志，eventType 为空时返回全部
func (s *Store) AuditLogs(ctx context.Context, eventType string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	q := s.with(ctx).Order("timestamp ASC, id ASC")
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	err := q.Find(&logs).Error
	return logs, wrap(err, "list audit logs")
}

func (s *Store) CreateIncident(ctx context.Context, inc *models.AIIncident) error {
	if inc.Status == "" {
		inc.Status = models.IncidentOpen
	}
	return wrap(s.with(ctx).Create(inc).Error, "create incident")
}

// Incidents 按状态列出事件，最新的在前
func (s *Store) Incidents(ctx context.Context, status string) ([]models.AIIncident, error) {
	var out []models.AIIncident
	q := s.with(ctx).Order("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&out).Error
	return out, wrap(err, "list incidents")
}

// PutState 插入或覆盖键值
func (s *Store) PutState(ctx context.Context, key, value string) error {
	st := models.AIState{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&st).Error
	return wrap(err, "put state")
}

// GetState 键不存在时返回 ErrNotFound
func (s *Store) GetState(ctx context.Context, key string) (*models.AIState, error) {
	var st models.AIState
	if err := s.with(ctx).Where("key = ?", key).First(&st).Error; err != nil {
		return nil, wrap(notFound(err), "get state")
	}
	return &st, nil
}

// StatesWithPrefix 列出指定前缀的键，最近更新的在前
func (s *Store) StatesWithPrefix(ctx context.Context, prefix string) ([]models.AIState, error) {
	var out []models.AIState
	err := s.with(ctx).
		Where("key LIKE ?", prefix+"%").
		Order("updated_at DESC").
		Find(&out).Error
	return out, wrap(err, "list states")
}
