package mysql

import (
	"context"
	"encoding/json"
	"time"

	"yatube/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FollowRepository struct {
	DB *gorm.DB
}

type OutboxRepository struct {
	DB *gorm.DB
}

type FollowCountReconcilerRepo struct {
	DB *gorm.DB
}

// Pair 对账消息结构体
type Pair struct {
	ID             uint64
	FollowingCount int64
	FollowerCount  int64
}

// Follow get-or-create（幂等）。唯一索引 uk_follow_user_author 冲突时不插入，返回已有记录，created=false
func (r *FollowRepository) Follow(ctx context.Context, userID, authorID uint64) (*model.Follow, bool, error) {
	var (
		rel     model.Follow
		created bool
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rel = model.Follow{UserID: userID, AuthorID: authorID}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "author_id"}},
			DoNothing: true,
		}).Create(&rel)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 已关注，读取已有记录
			rel = model.Follow{}
			return tx.Where("user_id = ? AND author_id = ?", userID, authorID).First(&rel).Error
		}
		created = true
		if err := r.adjustCounts(tx, userID, authorID, +1); err != nil {
			return err
		}
		// 写outbox表
		return r.insertOutbox(tx, "follow", userID, authorID)
	})
	if err != nil {
		return nil, false, err
	}
	return &rel, created, nil
}

// Unfollow 不存在关注关系时什么也不做，changed=false
func (r *FollowRepository) Unfollow(ctx context.Context, userID, authorID uint64) (bool, error) {
	var changed bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND author_id = ?", userID, authorID).Delete(&model.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		if err := r.adjustCounts(tx, userID, authorID, -1); err != nil {
			return err
		}
		return r.insertOutbox(tx, "unfollow", userID, authorID)
	})
	return changed, err
}

// IsFollowing 判断是否关注
func (r *FollowRepository) IsFollowing(ctx context.Context, userID, authorID uint64) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).
		Model(&model.Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *FollowRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Follow{}).Count(&n).Error
	return n, err
}

// ListFollowings 获取 userID 关注的人
func (r *FollowRepository) ListFollowings(ctx context.Context, userID uint64, cursor uint64, limit int) ([]model.Follow, uint64, error) {
	return r.listByCursor(ctx, "user_id = ?", userID, cursor, limit)
}

// ListFollowers 获取粉丝列表
func (r *FollowRepository) ListFollowers(ctx context.Context, userID uint64, cursor uint64, limit int) ([]model.Follow, uint64, error) {
	return r.listByCursor(ctx, "author_id = ?", userID, cursor, limit)
}

func (r *FollowRepository) listByCursor(ctx context.Context, cond string, userID, cursor uint64, limit int) ([]model.Follow, uint64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.DB.WithContext(ctx).Model(&model.Follow{}).Where(cond, userID)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	var rows []model.Follow
	// 这里limit+1是为了更好的继续分页
	if err := q.Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	var next uint64
	if len(rows) > limit {
		next = rows[limit-1].ID
		rows = rows[:limit]
	}
	return rows, next, nil
}

// adjustCounts 自动调整关注数或粉丝数量，不会小于 0
func (r *FollowRepository) adjustCounts(tx *gorm.DB, userID, authorID uint64, delta int64) error {
	if err := tx.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("following_count", clampExpr("following_count", delta)).Error; err != nil {
		return err
	}
	return tx.Model(&model.User{}).
		Where("id = ?", authorID).
		UpdateColumn("follower_count", clampExpr("follower_count", delta)).Error
}

func clampExpr(column string, delta int64) clause.Expr {
	return gorm.Expr("CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END", delta, delta)
}

// 插入outbox事件表
func (r *FollowRepository) insertOutbox(tx *gorm.DB, event string, follower, followee uint64) error {
	payload, err := json.Marshal(map[string]any{
		"event":      event,
		"event_time": time.Now().UTC().Format(time.RFC3339Nano),
		"follower":   follower,
		"followee":   followee,
	})
	if err != nil {
		return err
	}
	ob := &model.SocialOutbox{
		EventType: event,
		Follower:  follower,
		Followee:  followee,
		Payload:   string(payload),
		Status:    model.OutboxPending,
	}
	return tx.Create(ob).Error
}

// List 待投递（含失败且未超过重试次数）的 outbox 记录
func (r *OutboxRepository) List(ctx context.Context, batchSize, maxRetry int) ([]model.SocialOutbox, error) {
	var list []model.SocialOutbox
	if err := r.DB.WithContext(ctx).
		Where("status = ? OR (status = ? AND retry < ?)", model.OutboxPending, model.OutboxFailed, maxRetry).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// RetryUpdate outbox记录消息失败重试
func (r *OutboxRepository) RetryUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.SocialOutbox{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxFailed, "retry": gorm.Expr("retry + 1")}).Error
}

// SuccessUpdate outbox成功记录消息更新
func (r *OutboxRepository) SuccessUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.SocialOutbox{}).Where("id = ?", id).
		Update("status", model.OutboxSent).Error
}

// ReconcileList 异步对账用户批量查询
func (r *FollowCountReconcilerRepo) ReconcileList(ctx context.Context, batchSize int, lastID uint64) ([]Pair, uint64, error) {
	var list []Pair
	if err := r.DB.WithContext(ctx).Model(&model.User{}).
		Select("id", "following_count", "follower_count").
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, lastID, err
	}
	if len(list) == 0 {
		return nil, lastID, nil
	}
	return list, list[len(list)-1].ID, nil
}

// RealFollowers 真实粉丝数量查询
func (r *FollowCountReconcilerRepo) RealFollowers(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Follow{}).Where("author_id = ?", userID).Count(&n).Error
	return n, err
}

// RealFollowings 真实关注的人数量查询
func (r *FollowCountReconcilerRepo) RealFollowings(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Follow{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ReconcileFollowers 修正粉丝数量
func (r *FollowCountReconcilerRepo) ReconcileFollowers(ctx context.Context, userID uint64, n int64) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("follower_count", n).Error
}

// ReconcileFollowings 修正关注的人的数量
func (r *FollowCountReconcilerRepo) ReconcileFollowings(ctx context.Context, userID uint64, n int64) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("following_count", n).Error
}
