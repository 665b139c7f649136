// Package memory 是 AI 的长期记事本：学习到的键值、待人工处理的事件和给管理员的策略建议。
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aibbs/internal/models"
	"aibbs/internal/store"

	"go.uber.org/zap"
)

// LearningPrefix AIState 中学习键的前缀
const LearningPrefix = "learning:"

type Memory struct {
	st  *store.Store
	log *zap.Logger
}

func New(st *store.Store, log *zap.Logger) *Memory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Memory{st: st, log: log}
}

// RecordLearning 写入或覆盖学习值
func (m *Memory) RecordLearning(ctx context.Context, key, value string) error {
	return m.st.PutState(ctx, LearningPrefix+key, value)
}

// Learning 读取学习值，不存在时 ok 为 false
func (m *Memory) Learning(ctx context.Context, key string) (string, bool, error) {
	st, err := m.st.GetState(ctx, LearningPrefix+key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return st.Value, true, nil
}

// LogIncident 新建待人工处理的事件
func (m *Memory) LogIncident(ctx context.Context, targetID, reason string) error {
	err := m.st.CreateIncident(ctx, &models.AIIncident{
		TargetID:     targetID,
		ReportReason: reason,
		Status:       models.IncidentOpen,
	})
	if err != nil {
		return err
	}
	m.log.Info("incident opened", zap.String("target", targetID), zap.String("reason", reason))
	return nil
}

// OpenIncidents 列出未关闭的事件
func (m *Memory) OpenIncidents(ctx context.Context) ([]models.AIIncident, error) {
	return m.st.Incidents(ctx, models.IncidentOpen)
}

// Proposals 根据已有记录给出策略建议
func (m *Memory) Proposals(ctx context.Context) ([]string, error) {
	open, err := m.st.Incidents(ctx, models.IncidentOpen)
	if err != nil {
		return nil, err
	}
	kills, err := m.st.AuditLogs(ctx, models.EventKillSwitch)
	if err != nil {
		return nil, err
	}

	proposals := []string{
		"Decrease moderation threshold to 0.7",
		"Increase reply cooldown",
	}
	if n := len(open); n > 0 {
		proposals = append(proposals, fmt.Sprintf("Review %d open incident(s)", n))
	}
	if n := len(kills); n > 0 {
		last := kills[n-1].Timestamp.Format(time.RFC3339)
		proposals = append(proposals, fmt.Sprintf("Kill switch blocked %d action(s), last at %s; confirm it is still needed", n, last))
	}
	return proposals, nil
}
