package model

import "time"

// Follow UserID 关注 AuthorID，(user_id, author_id) 唯一
type Follow struct {
	ID       uint64    `gorm:"primaryKey"`
	UserID   uint64    `gorm:"not null;uniqueIndex:uk_follow_user_author,priority:1"`
	AuthorID uint64    `gorm:"not null;uniqueIndex:uk_follow_user_author,priority:2;index:idx_follow_author"`
	PubDate  time.Time `gorm:"autoCreateTime;index"`
}

// TableName sets table name for Follow
func (Follow) TableName() string {
	return "follow"
}

const (
	OutboxPending = 0
	OutboxSent    = 1
	OutboxFailed  = 2
)

// SocialOutbox 关注事件监控表
type SocialOutbox struct {
	ID        uint64 `gorm:"primaryKey"`
	EventType string `gorm:"size:16;not null"` // follow / unfollow
	Follower  uint64 `gorm:"not null"`
	Followee  uint64 `gorm:"not null"`
	Payload   string `gorm:"type:text;not null"`
	Status    int8   `gorm:"not null;default:0;index;comment:'0=pending,1=sent,2=failed'"`
	Retry     int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SocialOutbox) TableName() string { return "social_outbox" }
