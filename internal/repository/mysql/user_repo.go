package mysql

import (
	"context"

	"yatube/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	DB *gorm.DB
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

// FindByLogin 登录时用户名或邮箱均可
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&user).Error
	return &user, err
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error
	return &user, err
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	return &user, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, user *model.User, newPassword string) error {
	return r.DB.WithContext(ctx).Model(user).Update("password", newPassword).Error
}

// Delete 级联删除：评论、帖子、关注关系（同时修正对方计数），最后删除用户
func (r *UserRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ownPosts := tx.Session(&gorm.Session{NewDB: true}).Model(&model.Post{}).Select("id").Where("author_id = ?", id)
		if err := tx.Where("author_id = ? OR post_id IN (?)", id, ownPosts).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&model.Post{}).Error; err != nil {
			return err
		}

		followers := tx.Session(&gorm.Session{NewDB: true}).Model(&model.Follow{}).Select("user_id").Where("author_id = ?", id)
		if err := tx.Model(&model.User{}).Where("id IN (?)", followers).
			UpdateColumn("following_count", decrementExpr("following_count")).Error; err != nil {
			return err
		}
		followings := tx.Session(&gorm.Session{NewDB: true}).Model(&model.Follow{}).Select("author_id").Where("user_id = ?", id)
		if err := tx.Model(&model.User{}).Where("id IN (?)", followings).
			UpdateColumn("follower_count", decrementExpr("follower_count")).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR author_id = ?", id, id).Delete(&model.Follow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, id).Error
	})
}

func decrementExpr(column string) clause.Expr {
	return gorm.Expr("CASE WHEN "+column+" > 0 THEN "+column+" - 1 ELSE 0 END")
}
