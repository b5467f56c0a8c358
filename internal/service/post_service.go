package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/pkg"
	"yatube/internal/repository/mysql"
)

// ImageStore 保存上传图片，返回存到 Post.Image 的引用
type ImageStore interface {
	SavePostImage(r io.Reader) (string, error)
	Remove(ref string) error
}

// PostInput 新建/编辑帖子的表单
type PostInput struct {
	Text       string
	GroupID    *uint64
	Image      io.Reader // 为 nil 时不修改图片
	ClearImage bool
}

type PostService struct {
	repo     *mysql.PostRepository
	groups   *mysql.GroupRepository
	comments *mysql.CommentRepository
	media    ImageStore
	cache    FeedCache
	log      *zap.Logger
}

func NewPostService(db *gorm.DB, media ImageStore, cache FeedCache, log *zap.Logger) *PostService {
	if cache == nil {
		cache = NopFeedCache{}
	}
	return &PostService{
		repo:     &mysql.PostRepository{DB: db},
		groups:   &mysql.GroupRepository{DB: db},
		comments: &mysql.CommentRepository{DB: db},
		media:    media,
		cache:    cache,
		log:      log,
	}
}

// CreatePost 作者永远是当前登录用户
func (s *PostService) CreatePost(ctx context.Context, authorID uint64, in PostInput) (*model.Post, error) {
	if authorID == 0 {
		return nil, ErrUnauthenticated
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}
	image, err := s.saveImage(in.Image)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		Text:     in.Text,
		AuthorID: authorID,
		GroupID:  in.GroupID,
		Image:    image,
	}
	if err = s.repo.Create(ctx, post); err != nil {
		s.dropImage(image)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newValidationError("group", MsgInvalidChoice)
		}
		return nil, err
	}
	invalidate(ctx, s.cache, s.log)
	return post, nil
}

// UpdatePost 非作者返回 ErrPermission，且不做任何修改
func (s *PostService) UpdatePost(ctx context.Context, actorID uint64, username string, postID uint64, in PostInput) (*model.Post, error) {
	if actorID == 0 {
		return nil, ErrUnauthenticated
	}
	post, err := s.GetPost(ctx, username, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return post, ErrPermission
	}
	if err = s.validate(ctx, in); err != nil {
		return post, err
	}

	image := post.Image
	if in.ClearImage {
		image = ""
	}
	var uploaded string
	if in.Image != nil {
		if uploaded, err = s.saveImage(in.Image); err != nil {
			return post, err
		}
		image = uploaded
	}

	updated := &model.Post{ID: post.ID, Text: in.Text, GroupID: in.GroupID, Image: image}
	affected, err := s.repo.Update(ctx, updated, actorID)
	if err != nil || affected == 0 {
		s.dropImage(uploaded)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return post, newValidationError("group", MsgInvalidChoice)
		}
		return post, err
	}
	if affected == 0 {
		// 并发删除或作者变化
		return post, ErrPermission
	}
	invalidate(ctx, s.cache, s.log)
	return s.repo.FindByID(ctx, post.ID)
}

// GetPost 帖子必须属于 username
func (s *PostService) GetPost(ctx context.Context, username string, postID uint64) (*model.Post, error) {
	post, err := s.repo.FindByAuthor(ctx, postID, username)
	if err != nil {
		return nil, notFound(err, "post %d of %q", postID, username)
	}
	return post, nil
}

// PostWithComments 帖子详情页
func (s *PostService) PostWithComments(ctx context.Context, username string, postID uint64) (*model.Post, []model.Comment, error) {
	post, err := s.GetPost(ctx, username, postID)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.comments.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, nil, err
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	return post, comments, nil
}

// DeletePost 管理员删除，级联删除评论；不存在视为成功
func (s *PostService) DeletePost(ctx context.Context, postID uint64) error {
	if err := s.repo.Delete(ctx, postID); err != nil {
		return err
	}
	invalidate(ctx, s.cache, s.log)
	return nil
}

func (s *PostService) validate(ctx context.Context, in PostInput) error {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Text) == "" {
		verr.add("text", MsgRequired)
	}
	if in.GroupID != nil {
		if _, err := s.groups.FindByID(ctx, *in.GroupID); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			verr.add("group", MsgInvalidChoice)
		}
	}
	return verr.orNil()
}

// dropImage 删除没有写入数据库的上传文件
func (s *PostService) dropImage(ref string) {
	if ref == "" || s.media == nil {
		return
	}
	if err := s.media.Remove(ref); err != nil {
		s.log.Warn("remove orphan image failed", zap.String("image", ref), zap.Error(err))
	}
}

func (s *PostService) saveImage(r io.Reader) (string, error) {
	if r == nil {
		return "", nil
	}
	if s.media == nil {
		return "", fmt.Errorf("image upload is not configured")
	}
	ref, err := s.media.SavePostImage(r)
	if err != nil {
		if errors.Is(err, pkg.ErrInvalidImage) {
			return "", newValidationError("image", pkg.ErrInvalidImage.Error())
		}
		return "", err
	}
	return ref, nil
}
