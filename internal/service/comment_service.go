package service

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/repository/mysql"
)

type CommentService struct {
	repo  *mysql.CommentRepository
	posts *mysql.PostRepository
}

func NewCommentService(db *gorm.DB) *CommentService {
	return &CommentService{
		repo:  &mysql.CommentRepository{DB: db},
		posts: &mysql.PostRepository{DB: db},
	}
}

// AddComment 作者只能是当前登录用户；未登录不写库
func (s *CommentService) AddComment(ctx context.Context, authorID uint64, username string, postID uint64, text string) (*model.Comment, error) {
	if authorID == 0 {
		return nil, ErrUnauthenticated
	}
	post, err := s.posts.FindByAuthor(ctx, postID, username)
	if err != nil {
		return nil, notFound(err, "post %d of %q", postID, username)
	}
	if strings.TrimSpace(text) == "" {
		return nil, newValidationError("text", MsgRequired)
	}

	comment := &model.Comment{
		PostID:   post.ID,
		AuthorID: authorID,
		Text:     text,
	}
	if err = s.repo.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}
