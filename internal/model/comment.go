package model

import "time"

type Comment struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement"`
	PostID   uint64    `gorm:"not null;index:idx_comment_post_created,priority:1"`
	AuthorID uint64    `gorm:"not null;index"`
	Author   User      `gorm:"foreignKey:AuthorID"`
	Created  time.Time `gorm:"autoCreateTime;index:idx_comment_post_created,priority:2"`
	Text     string    `gorm:"type:text;not null"`
}
