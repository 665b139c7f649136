// Package audit 记录自动化操作的只追加审计日志。
// 对调用方而言写入永远不会失败。
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"aibbs/internal/metrics"
	"aibbs/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// 常用操作者
const (
	ActorSystem    = "System"
	ActorModerator = "moderator"
	ActorAdmin     = "admin"
)

// Entry 持久化之前的一条审计记录
type Entry struct {
	Actor     string
	EventType string
	TargetID  string
	RuleID    string
	Reason    string
	Payload   map[string]any
	// 只保存哈希，不保存原文
	Content string
}

// Sink 接收审计记录。实现不能 panic，不能长时间阻塞，自身错误要自行吞掉
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// Writer Recorder 依赖的存储接口
type Writer interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Recorder 通过 Writer 写入记录，失败只打日志
type Recorder struct {
	w   Writer
	log *zap.Logger
	now func() time.Time
}

func NewRecorder(w Writer, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{w: w, log: log, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	defer func() {
		if p := recover(); p != nil {
			metrics.AuditWriteErrors.Inc()
			r.log.Error("audit write panicked", zap.String("event", e.EventType), zap.Any("panic", p))
		}
	}()

	entry := Build(e, r.now())
	if err := r.w.CreateAuditLog(ctx, entry); err != nil {
		metrics.AuditWriteErrors.Inc()
		r.log.Error("failed to write audit log",
			zap.String("event", e.EventType),
			zap.String("target", e.TargetID),
			zap.Error(err),
		)
	}
}

// Build 转换为存储格式
func Build(e Entry, at time.Time) *models.AuditLog {
	entry := &models.AuditLog{
		Timestamp: at.UTC(),
		Actor:     e.Actor,
		EventType: e.EventType,
		TargetID:  e.TargetID,
		Reason:    e.Reason,
	}
	if e.RuleID != "" {
		rule := e.RuleID
		entry.RuleID = &rule
	}
	if e.Content != "" {
		h := Hash(e.Content)
		entry.InputHash = &h
	}
	if len(e.Payload) > 0 {
		entry.Payload = SanitizePayload(e.Payload)
	}
	return entry
}

// Hash 返回文本的 sha256 十六进制
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var redactedKeys = map[string]bool{
	"ip":         true,
	"email":      true,
	"poster_id":  true,
	"user_agent": true,
}

// SanitizePayload 去掉可识别身份的字段后编码
func SanitizePayload(p map[string]any) datatypes.JSON {
	clean := make(map[string]any, len(p))
	for k, v := range p {
		if redactedKeys[strings.ToLower(k)] {
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return datatypes.JSON(data)
}

// PostTarget 帖子的 target id
func PostTarget(id uint) string {
	return "post:" + strconv.FormatUint(uint64(id), 10)
}

// Nop 丢弃所有记录
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
