package model

import "time"

// Post 列表默认按 pub_date DESC, id DESC 排序
type Post struct {
	ID       uint64    `gorm:"primaryKey"`
	Text     string    `gorm:"type:text;not null"`
	PubDate  time.Time `gorm:"autoCreateTime;index:idx_post_pub_date;index:idx_post_author_pub,priority:2"`
	AuthorID uint64    `gorm:"not null;index:idx_post_author_pub,priority:1"`
	Author   User      `gorm:"foreignKey:AuthorID"`
	GroupID  *uint64   `gorm:"index"`
	Group    *Group    `gorm:"foreignKey:GroupID"`
	Image    string    `gorm:"size:255"`
}
