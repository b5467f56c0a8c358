package model

const (
	GroupTitleMaxLen       = 200
	GroupSlugMaxLen        = 50
	GroupDescriptionMaxLen = 600
)

type Group struct {
	ID          uint64 `gorm:"primaryKey"`
	Title       string `gorm:"size:200;not null"`
	Slug        string `gorm:"uniqueIndex;size:50;not null"`
	Description string `gorm:"size:600"`
}
