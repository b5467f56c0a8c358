package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/pkg"
	"yatube/internal/repository/mysql"
)

// FeedCache feed 分页的读穿缓存，写操作后必须 Invalidate。
// Get 返回读取时的代号，未命中回填时 Set 必须带上同一个代号
type FeedCache interface {
	Get(ctx context.Context, key string, dst any) (gen int64, hit bool, err error)
	Set(ctx context.Context, gen int64, key string, v any) error
	Invalidate(ctx context.Context) error
}

// NopFeedCache 不缓存
type NopFeedCache struct{}

func (NopFeedCache) Get(context.Context, string, any) (int64, bool, error) { return 0, false, nil }
func (NopFeedCache) Set(context.Context, int64, string, any) error         { return nil }
func (NopFeedCache) Invalidate(context.Context) error                      { return nil }

type PostPage = pkg.Page[model.Post]

type FeedService struct {
	posts  *mysql.PostRepository
	groups *mysql.GroupRepository
	users  *mysql.UserRepository
	cache  FeedCache
	log    *zap.Logger
}

func NewFeedService(db *gorm.DB, cache FeedCache, log *zap.Logger) *FeedService {
	if cache == nil {
		cache = NopFeedCache{}
	}
	return &FeedService{
		posts:  &mysql.PostRepository{DB: db},
		groups: &mysql.GroupRepository{DB: db},
		users:  &mysql.UserRepository{DB: db},
		cache:  cache,
		log:    log,
	}
}

// Index 全站帖子
func (s *FeedService) Index(ctx context.Context, page int) (PostPage, error) {
	return s.cached(ctx, fmt.Sprintf("index?page=%d", page), page, func(offset int) ([]model.Post, int64, error) {
		return s.posts.ListAll(ctx, offset, pkg.PageSize)
	})
}

// Group 社区帖子，slug 不存在返回 ErrNotFound
func (s *FeedService) Group(ctx context.Context, slug string, page int) (*model.Group, PostPage, error) {
	group, err := s.groups.FindBySlug(ctx, slug)
	if err != nil {
		return nil, PostPage{}, notFound(err, "group %q", slug)
	}
	p, err := s.cached(ctx, fmt.Sprintf("group/%s?page=%d", slug, page), page, func(offset int) ([]model.Post, int64, error) {
		return s.posts.ListByGroup(ctx, group.ID, offset, pkg.PageSize)
	})
	return group, p, err
}

// Profile 用户主页，PostPage.Total 即帖子总数
func (s *FeedService) Profile(ctx context.Context, username string, page int) (*model.User, PostPage, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, PostPage{}, notFound(err, "user %q", username)
	}
	p, err := s.cached(ctx, fmt.Sprintf("profile/%s?page=%d", username, page), page, func(offset int) ([]model.Post, int64, error) {
		return s.posts.ListByAuthor(ctx, user.ID, offset, pkg.PageSize)
	})
	return user, p, err
}

// Follow 关注作者的帖子，需要登录
func (s *FeedService) Follow(ctx context.Context, viewerID uint64, page int) (PostPage, error) {
	if viewerID == 0 {
		return PostPage{}, ErrUnauthenticated
	}
	return s.cached(ctx, fmt.Sprintf("follow/%d?page=%d", viewerID, page), page, func(offset int) ([]model.Post, int64, error) {
		return s.posts.ListFollowed(ctx, viewerID, offset, pkg.PageSize)
	})
}

// 缓存异常只记录日志，回源数据库
func (s *FeedService) cached(ctx context.Context, key string, page int, load func(offset int) ([]model.Post, int64, error)) (PostPage, error) {
	if page < 1 {
		page = 1
	}
	var p PostPage
	gen, hit, err := s.cache.Get(ctx, key, &p)
	if err != nil {
		s.log.Warn("feed cache get failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return p, nil
	}

	items, total, err := load(pkg.Offset(page, pkg.PageSize))
	if err != nil {
		return PostPage{}, err
	}
	p = pkg.NewPage(items, page, total, pkg.PageSize)
	// 查询期间发生写操作时代号已变，回填进旧代号不会被读到
	if err = s.cache.Set(ctx, gen, key, p); err != nil {
		s.log.Warn("feed cache set failed", zap.String("key", key), zap.Error(err))
	}
	return p, nil
}

// invalidate 写操作之后调用，失败只记录日志
func invalidate(ctx context.Context, cache FeedCache, log *zap.Logger) {
	if err := cache.Invalidate(ctx); err != nil {
		log.Warn("feed cache invalidate failed", zap.Error(err))
	}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return err
}
