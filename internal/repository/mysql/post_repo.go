package mysql

import (
	"context"

	"yatube/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostRepository struct {
	DB *gorm.DB
}

// Create 写入帖子；引用的社区加共享锁，避免与删除社区并发
func (r *PostRepository) Create(ctx context.Context, post *model.Post) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, post.GroupID, "SHARE"); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(post).Error
	})
}

// Update 只允许作者修改 text/group/image，pub_date 不变；非作者时返回 0
func (r *PostRepository) Update(ctx context.Context, post *model.Post, authorID uint64) (int64, error) {
	var affected int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, post.GroupID, "SHARE"); err != nil {
			return err
		}
		// 内容未变化时 MySQL 的 RowsAffected 为 0，这里先锁行确认作者
		if err := tx.Model(&model.Post{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND author_id = ?", post.ID, authorID).
			Count(&affected).Error; err != nil || affected == 0 {
			return err
		}
		return tx.Model(&model.Post{}).
			Where("id = ?", post.ID).
			Updates(map[string]any{
				"text":     post.Text,
				"group_id": post.GroupID,
				"image":    post.Image,
			}).Error
	})
	return affected, err
}

func (r *PostRepository) FindByID(ctx context.Context, id uint64) (*model.Post, error) {
	var post model.Post
	err := r.DB.WithContext(ctx).Preload("Author").Preload("Group").First(&post, id).Error
	return &post, err
}

// FindByAuthor 帖子必须属于 username，否则视为不存在
func (r *PostRepository) FindByAuthor(ctx context.Context, id uint64, username string) (*model.Post, error) {
	var post model.Post
	authors := r.DB.Session(&gorm.Session{NewDB: true}).Model(&model.User{}).Select("id").Where("username = ?", username)
	err := r.DB.WithContext(ctx).
		Preload("Author").
		Preload("Group").
		Where("posts.id = ? AND posts.author_id IN (?)", id, authors).
		First(&post).Error
	return &post, err
}

// Delete 先删评论再删帖子（级联）
func (r *PostRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Post{}, id).Error
	})
}

// ListAll 全站帖子
func (r *PostRepository) ListAll(ctx context.Context, offset, limit int) ([]model.Post, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB { return db }, offset, limit)
}

// ListByGroup 社区帖子
func (r *PostRepository) ListByGroup(ctx context.Context, groupID uint64, offset, limit int) ([]model.Post, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.group_id = ?", groupID)
	}, offset, limit)
}

// ListByAuthor 用户主页帖子
func (r *PostRepository) ListByAuthor(ctx context.Context, authorID uint64, offset, limit int) ([]model.Post, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.author_id = ?", authorID)
	}, offset, limit)
}

// ListFollowed userID 关注的作者的帖子
func (r *PostRepository) ListFollowed(ctx context.Context, userID uint64, offset, limit int) ([]model.Post, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		authors := db.Session(&gorm.Session{NewDB: true}).
			Model(&model.Follow{}).
			Select("author_id").
			Where("user_id = ?", userID)
		return db.Where("posts.author_id IN (?)", authors)
	}, offset, limit)
}

// 基础分页查询：先 count，offset 超出总数时不再查列表
func (r *PostRepository) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB, offset, limit int) ([]model.Post, int64, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&model.Post{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Post
	if total <= int64(offset) {
		return list, total, nil
	}
	err := r.DB.WithContext(ctx).
		Scopes(scope).
		Preload("Author").
		Preload("Group").
		Order("posts.pub_date DESC, posts.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&list).Error
	return list, total, err
}

func lockGroup(tx *gorm.DB, groupID *uint64, strength string) error {
	if groupID == nil {
		return nil
	}
	var g model.Group
	return tx.Clauses(clause.Locking{Strength: strength}).First(&g, *groupID).Error
}
