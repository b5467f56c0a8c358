package model

import "time"

type User struct {
	ID             uint64 `gorm:"primaryKey"`
	Username       string `gorm:"uniqueIndex;size:150;not null"`
	Password       string `gorm:"size:255;not null" json:"-"`
	Role           int    `gorm:"default:0" json:"-"` // 0=user, 1=admin
	Email          string `gorm:"size:254"`
	FollowerCount  int64  `gorm:"not null;default:0"`
	FollowingCount int64  `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const RoleAdmin = 1
