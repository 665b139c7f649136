package store

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound 查询不到记录
var ErrNotFound = stderrors.New("record not found")

// Store Web 层和 AI 核心共用的存储层。
// 每个方法各自使用短事务，在 Transaction 回调中拿到的 Store 上调用时共用同一事务
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 底层连接（健康检查、迁移）
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction 在单个事务中执行 fn
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) with(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, ErrNotFound) {
		return err
	}
	return errors.Wrap(err, msg)
}
