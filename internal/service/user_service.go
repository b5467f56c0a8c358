package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/pkg"
	"yatube/internal/repository/mysql"
	"yatube/internal/repository/redis"
)

const minPasswordLen = 8

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

// 与路由前缀冲突的用户名
var reservedUsernames = map[string]struct{}{
	"new": {}, "follow": {}, "group": {}, "auth": {}, "admin": {}, "media": {},
}

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenRevoked       = errors.New("account has been logged in elsewhere")
)

// Identity 当前请求的身份，ID 为 0 表示未登录
type Identity struct {
	ID       uint64
	Username string
	Role     int
}

func (i Identity) Authenticated() bool { return i.ID != 0 }

type UserService struct {
	repo   *mysql.UserRepository
	tokens *redis.TokenRepository
	issuer *pkg.TokenIssuer
	mailer pkg.Mailer
	cache  FeedCache
	log    *zap.Logger
}

func NewUserService(db *gorm.DB, tokens *redis.TokenRepository, issuer *pkg.TokenIssuer, mailer pkg.Mailer, cache FeedCache, log *zap.Logger) *UserService {
	if cache == nil {
		cache = NopFeedCache{}
	}
	return &UserService{
		repo:   &mysql.UserRepository{DB: db},
		tokens: tokens,
		issuer: issuer,
		mailer: mailer,
		cache:  cache,
		log:    log,
	}
}

// Register 注册；通知邮件发送失败不影响注册
func (s *UserService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	verr := &ValidationError{}
	if !usernamePattern.MatchString(username) {
		verr.add("username", "Введите правильное имя пользователя.")
	} else if _, reserved := reservedUsernames[strings.ToLower(username)]; reserved {
		verr.add("username", MsgUsernameTaken)
	}
	if len(password) < minPasswordLen {
		verr.add("password", fmt.Sprintf("Пароль должен содержать как минимум %d символов.", minPasswordLen))
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username: username,
		Password: string(hash),
		Email:    email,
	}
	if err = s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newValidationError("username", MsgUsernameTaken)
		}
		return nil, err
	}

	if s.mailer != nil && email != "" {
		if err = s.mailer.Send(email, pkg.SignupSubject, pkg.SignupHTML(username)); err != nil {
			s.log.Warn("signup mail failed", zap.String("username", username), zap.Error(err))
		}
	}
	return user, nil
}

// Login 签发令牌，并把 access token 写入 redis（同一账号只保留最后一次登录）
func (s *UserService) Login(ctx context.Context, login, password string) (*pkg.Pair, error) {
	user, err := s.repo.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, user)
}

func (s *UserService) Logout(ctx context.Context, userID uint64) error {
	return s.tokens.DeleteUserToken(ctx, userID)
}

// Refresh 用 refresh token 换新的一对令牌
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, notFound(err, "user %d", claims.UserID)
	}
	return s.issue(ctx, user)
}

// Authenticate 校验 access token 且必须是 redis 中记录的那一个，成功后续期
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		return Identity{}, err
	}
	origin, err := s.tokens.GetUserToken(ctx, claims.UserID)
	if err != nil {
		return Identity{}, err
	}
	if origin != accessToken {
		return Identity{}, ErrTokenRevoked
	}
	if err = s.tokens.ExtendUserToken(ctx, claims.UserID); err != nil {
		return Identity{}, err
	}
	return Identity{ID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
}

// ChangePassword 登录态修改密码，成功后需要重新登录
func (s *UserService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return notFound(err, "user %d", userID)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return newValidationError("old_password", "Ваш старый пароль введен неправильно. Пожалуйста, введите его снова.")
	}
	if len(newPassword) < minPasswordLen {
		return newValidationError("new_password", fmt.Sprintf("Пароль должен содержать как минимум %d символов.", minPasswordLen))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err = s.repo.UpdatePassword(ctx, user, string(hash)); err != nil {
		return err
	}
	return s.Logout(ctx, userID)
}

// DeleteUser 管理员删除用户，级联删除其帖子、评论与关注关系
func (s *UserService) DeleteUser(ctx context.Context, username string) error {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return notFound(err, "user %q", username)
	}
	if err = s.repo.Delete(ctx, user.ID); err != nil {
		return err
	}
	if err = s.tokens.DeleteUserToken(ctx, user.ID); err != nil {
		s.log.Warn("drop token of deleted user failed", zap.Uint64("user_id", user.ID), zap.Error(err))
	}
	invalidate(ctx, s.cache, s.log)
	return nil
}

func (s *UserService) issue(ctx context.Context, user *model.User) (*pkg.Pair, error) {
	pair, err := s.issuer.GeneratePair(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	if err = s.tokens.AddUserToken(ctx, user.ID, pair.AccessToken); err != nil {
		return nil, err
	}
	return pair, nil
}
