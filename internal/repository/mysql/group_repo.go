package mysql

import (
	"context"
	"errors"

	"yatube/internal/model"

	"gorm.io/gorm"
)

type GroupRepository struct {
	DB *gorm.DB
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	return r.DB.WithContext(ctx).Create(g).Error
}

func (r *GroupRepository) FindByID(ctx context.Context, id uint64) (*model.Group, error) {
	var group model.Group
	err := r.DB.WithContext(ctx).First(&group, id).Error
	return &group, err
}

func (r *GroupRepository) FindBySlug(ctx context.Context, slug string) (*model.Group, error) {
	var group model.Group
	err := r.DB.WithContext(ctx).Where("slug = ?", slug).First(&group).Error
	return &group, err
}

func (r *GroupRepository) List(ctx context.Context) ([]model.Group, error) {
	var list []model.Group
	err := r.DB.WithContext(ctx).Order("title ASC, id ASC").Find(&list).Error
	return list, err
}

// Delete 有帖子引用时返回 ErrGroupProtected；社区已不存在视为成功
func (r *GroupRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, &id, "UPDATE"); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		var n int64
		if err := tx.Model(&model.Post{}).Where("group_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrGroupProtected
		}
		return tx.Delete(&model.Group{}, id).Error
	})
}
