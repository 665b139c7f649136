package store

import (
	"context"
	"slices"
	"time"

	"aibbs/internal/models"

	"gorm.io/gorm"
)

// GetPost 按 ID 读取帖子
func (s *Store) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	if err := s.with(ctx).First(&p, id).Error; err != nil {
		return nil, wrap(notFound(err), "get post")
	}
	return &p, nil
}

// GetPostInLanguage 按 ID 读取帖子，限定版面语言
func (s *Store) GetPostInLanguage(ctx context.Context, id uint, lang string) (*models.Post, error) {
	var p models.Post
	err := s.with(ctx).Where("language = ? AND id = ?", lang, id).First(&p).Error
	if err != nil {
		return nil, wrap(notFound(err), "get post")
	}
	return &p, nil
}

// LastNumber 主题内最大楼层号，没有帖子时为 0
func (s *Store) LastNumber(ctx context.Context, threadID uint) (int, error) {
	var last models.Post
	err := s.with(ctx).
		Where("thread_id = ?", threadID).
		Order("number DESC").
		Select("number").
		First(&last).Error
	if err != nil {
		if notFound(err) == ErrNotFound {
			return 0, nil
		}
		return 0, wrap(err, "last post number")
	}
	return last.Number, nil
}

// InsertPost 原样写入
func (s *Store) InsertPost(ctx context.Context, p *models.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return wrap(s.with(ctx).Create(p).Error, "insert post")
}

// CreateHumanPost 保存用户发帖。
// 没有 ThreadID 的帖子作为新主题，楼层号为 1，thread id 为自身 ID；回复取主题内下一个楼层号
func (s *Store) CreateHumanPost(ctx context.Context, p *models.Post) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if p.ThreadID == nil {
			p.Number = 1
			if err := tx.InsertPost(ctx, p); err != nil {
				return err
			}
			id := p.ID
			p.ThreadID = &id
			return wrap(tx.with(ctx).Model(p).Update("thread_id", id).Error, "backfill thread id")
		}

		last, err := tx.LastNumber(ctx, *p.ThreadID)
		if err != nil {
			return err
		}
		p.Number = last + 1
		return tx.InsertPost(ctx, p)
	})
}

// RecentThreadPosts 按创建时间取主题最后 n 条帖子，旧的在前
func (s *Store) RecentThreadPosts(ctx context.Context, threadID uint, n int) ([]models.Post, error) {
	var posts []models.Post
	err := s.with(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&posts).Error
	if err != nil {
		return nil, wrap(err, "recent thread posts")
	}
	slices.Reverse(posts)
	return posts, nil
}

// LatestByNumber 按楼层号取主题最后 n 条帖子，楼层号升序
func (s *Store) LatestByNumber(ctx context.Context, threadID uint, n int) ([]models.Post, error) {
	var posts []models.Post
	err := s.with(ctx).
		Where("thread_id = ?", threadID).
		Order("number DESC").
		Limit(n).
		Find(&posts).Error
	if err != nil {
		return nil, wrap(err, "latest thread posts")
	}
	slices.Reverse(posts)
	return posts, nil
}

// ThreadPosts 主题内指定语言的全部帖子，旧的在前
func (s *Store) ThreadPosts(ctx context.Context, threadID uint, lang string) ([]models.Post, error) {
	var posts []models.Post
	err := s.with(ctx).
		Where("language = ? AND thread_id = ?", lang, threadID).
		Order("created_at ASC, id ASC").
		Find(&posts).Error
	return posts, wrap(err, "thread posts")
}

// LanguagePosts 版面全部帖子，旧的在前
func (s *Store) LanguagePosts(ctx context.Context, lang string) ([]models.Post, error) {
	var posts []models.Post
	err := s.with(ctx).
		Where("language = ?", lang).
		Order("created_at ASC, id ASC").
		Find(&posts).Error
	return posts, wrap(err, "board posts")
}

// CountPosts 帖子总数
func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := s.with(ctx).Model(&models.Post{}).Count(&n).Error
	return n, wrap(err, "count posts")
}

// CountThreadPosts 主题帖子数
func (s *Store) CountThreadPosts(ctx context.Context, threadID uint) (int64, error) {
	var n int64
	err := s.with(ctx).Model(&models.Post{}).Where("thread_id = ?", threadID).Count(&n).Error
	return n, wrap(err, "count thread posts")
}

// SetHidden 隐藏帖子，帖子不存在时返回 false
func (s *Store) SetHidden(ctx context.Context, id uint) (bool, error) {
	return s.setFlag(ctx, id, "is_hidden")
}

// SetLocked 锁定主题，帖子不存在时返回 false
func (s *Store) SetLocked(ctx context.Context, threadID uint) (bool, error) {
	return s.setFlag(ctx, threadID, "is_locked")
}

func (s *Store) setFlag(ctx context.Context, id uint, column string) (bool, error) {
	var res *gorm.DB
	err := s.Transaction(ctx, func(tx *Store) error {
		res = tx.with(ctx).Model(&models.Post{}).Where("id = ?", id).Update(column, true)
		return res.Error
	})
	if err != nil {
		return false, wrap(err, "set "+column)
	}
	return res.RowsAffected > 0, nil
}
