// Package testutil 提供测试用的 sqlite 数据库与 redis
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yatube/internal/model"
	"yatube/internal/repository/mysql"
)

// NewDB 返回已建表的内存 sqlite；单连接保证同一个内存库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := mysql.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	db.Logger = logger.Default.LogMode(logger.Silent)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, mysql.AutoMigrate(db))
	return db
}

// NewRedis 启动 miniredis 并返回客户端
func NewRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// CreateUser 直接写入一个用户
func CreateUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Password: "x", Email: username + "@example.com"}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateGroup 直接写入一个社区
func CreateGroup(t *testing.T, db *gorm.DB, slug string) *model.Group {
	t.Helper()
	g := &model.Group{Title: "title " + slug, Slug: slug, Description: "description"}
	require.NoError(t, db.Create(g).Error)
	return g
}
