package mysql

import (
	"errors"

	"yatube/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

// ErrGroupProtected 仍有帖子引用该社区，禁止删除
var ErrGroupProtected = errors.New("group is referenced by posts")

// InitDB 连接 MySQL 并赋值给全局 DB
func InitDB(dsn string) error {
	db, err := Open(mysql.Open(dsn))
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open 统一的 gorm 配置，测试中传入 sqlite dialector
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
}

// AutoMigrate 自动建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Group{},
		&model.Post{},
		&model.Comment{},
		&model.Follow{},
		&model.SocialOutbox{},
	)
}
