package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/repository/mysql"
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

const msgInvalidSlug = "Значение должно состоять только из латинских букв, цифр, знаков подчеркивания или дефиса."

type GroupService struct {
	repo  *mysql.GroupRepository
	cache FeedCache
	log   *zap.Logger
}

type GroupInput struct {
	Title       string
	Slug        string
	Description string
}

func NewGroupService(db *gorm.DB, cache FeedCache, log *zap.Logger) *GroupService {
	if cache == nil {
		cache = NopFeedCache{}
	}
	return &GroupService{
		repo:  &mysql.GroupRepository{DB: db},
		cache: cache,
		log:   log,
	}
}

func (s *GroupService) CreateGroup(ctx context.Context, in GroupInput) (*model.Group, error) {
	verr := &ValidationError{}
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		verr.add("title", MsgRequired)
	case utf8.RuneCountInString(title) > model.GroupTitleMaxLen:
		verr.add("title", tooLong(model.GroupTitleMaxLen, title))
	}
	switch {
	case in.Slug == "":
		verr.add("slug", MsgRequired)
	case len(in.Slug) > model.GroupSlugMaxLen || !slugPattern.MatchString(in.Slug):
		verr.add("slug", msgInvalidSlug)
	}
	if utf8.RuneCountInString(in.Description) > model.GroupDescriptionMaxLen {
		verr.add("description", tooLong(model.GroupDescriptionMaxLen, in.Description))
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	group := &model.Group{
		Title:       title,
		Slug:        in.Slug,
		Description: in.Description,
	}
	if err := s.repo.Create(ctx, group); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newValidationError("slug", MsgSlugTaken)
		}
		return nil, err
	}
	return group, nil
}

func (s *GroupService) ListGroups(ctx context.Context) ([]model.Group, error) {
	list, err := s.repo.List(ctx)
	if list == nil {
		list = []model.Group{}
	}
	return list, err
}

// DeleteGroup 仍有帖子引用时返回 ErrReferentialIntegrity，社区保留
func (s *GroupService) DeleteGroup(ctx context.Context, slug string) error {
	group, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return notFound(err, "group %q", slug)
	}
	if err = s.repo.Delete(ctx, group.ID); err != nil {
		if errors.Is(err, mysql.ErrGroupProtected) {
			return fmt.Errorf("group %q: %w: %w", slug, ErrReferentialIntegrity, err)
		}
		return err
	}
	invalidate(ctx, s.cache, s.log)
	return nil
}

func tooLong(limit int, v string) string {
	return fmt.Sprintf("Убедитесь, что это значение содержит не более %d символов (сейчас %d).", limit, utf8.RuneCountInString(v))
}
