package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/pkg"
	"yatube/internal/repository/mysql"
)

type FollowService struct {
	repo  *mysql.FollowRepository
	users *mysql.UserRepository
	cache FeedCache
	log   *zap.Logger
}

// FollowCountReconciler 用户关注对账计数器
type FollowCountReconciler struct {
	repo      *mysql.FollowCountReconcilerRepo
	batchSize int
	interval  time.Duration
	log       *zap.Logger
}

type Sender func(ctx context.Context, ob *model.SocialOutbox) error

// OutboxRelayer outbox表相关服务
type OutboxRelayer struct {
	repo      *mysql.OutboxRepository
	batchSize int
	maxRetry  int
	interval  time.Duration
	sender    Sender
	log       *zap.Logger
}

func NewFollowService(db *gorm.DB, cache FeedCache, log *zap.Logger) *FollowService {
	if cache == nil {
		cache = NopFeedCache{}
	}
	return &FollowService{
		repo:  &mysql.FollowRepository{DB: db},
		users: &mysql.UserRepository{DB: db},
		cache: cache,
		log:   log,
	}
}

func NewOutboxRelayer(db *gorm.DB, sender Sender, batchSize int, interval time.Duration, log *zap.Logger) *OutboxRelayer {
	if batchSize <= 0 {
		batchSize = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelayer{
		repo:      &mysql.OutboxRepository{DB: db},
		batchSize: batchSize,
		maxRetry:  5,
		interval:  interval,
		sender:    sender,
		log:       log,
	}
}

func NewFollowCountReconciler(db *gorm.DB, batchSize int, interval time.Duration, log *zap.Logger) *FollowCountReconciler {
	if batchSize <= 0 {
		batchSize = 500 // 设置一次对账的大小
	}
	if interval <= 0 {
		interval = 5 * time.Minute // 对账的间隔时间
	}
	return &FollowCountReconciler{
		repo:      &mysql.FollowCountReconcilerRepo{DB: db},
		batchSize: batchSize,
		interval:  interval,
		log:       log,
	}
}

// Follow 关注 authorName（幂等）；不能关注自己
func (s *FollowService) Follow(ctx context.Context, userID uint64, authorName string) (*model.Follow, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	author, err := s.users.FindByUsername(ctx, authorName)
	if err != nil {
		return nil, notFound(err, "user %q", authorName)
	}
	if author.ID == userID {
		return nil, newValidationError("author", MsgSelfFollow)
	}
	rel, created, err := s.repo.Follow(ctx, userID, author.ID)
	if err != nil {
		return nil, err
	}
	if created {
		invalidate(ctx, s.cache, s.log)
	}
	return rel, nil
}

// Unfollow 未关注时什么也不做
func (s *FollowService) Unfollow(ctx context.Context, userID uint64, authorName string) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	author, err := s.users.FindByUsername(ctx, authorName)
	if err != nil {
		return notFound(err, "user %q", authorName)
	}
	changed, err := s.repo.Unfollow(ctx, userID, author.ID)
	if err != nil {
		return err
	}
	if changed {
		invalidate(ctx, s.cache, s.log)
	}
	return nil
}

// IsFollowing 未登录视为未关注
func (s *FollowService) IsFollowing(ctx context.Context, userID, authorID uint64) (bool, error) {
	if userID == 0 || authorID == 0 {
		return false, nil
	}
	return s.repo.IsFollowing(ctx, userID, authorID)
}

// ListFollowings username 关注的人
func (s *FollowService) ListFollowings(ctx context.Context, username string, cursor uint64, limit int) ([]model.Follow, uint64, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, 0, notFound(err, "user %q", username)
	}
	return s.repo.ListFollowings(ctx, user.ID, cursor, limit)
}

// ListFollowers username 的粉丝
func (s *FollowService) ListFollowers(ctx context.Context, username string, cursor uint64, limit int) ([]model.Follow, uint64, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, 0, notFound(err, "user %q", username)
	}
	return s.repo.ListFollowers(ctx, user.ID, cursor, limit)
}

// Run outbox启动器
func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce 从数据库读取事件交给 sender，返回成功投递的条数
func (r *OutboxRelayer) DrainOnce(ctx context.Context) int {
	rows, err := r.repo.List(ctx, r.batchSize, r.maxRetry)
	if err != nil {
		r.log.Error("outbox query failed", zap.Error(err))
		return 0
	}
	sent := 0
	for i := range rows {
		ob := rows[i]
		if err = r.sender(ctx, &ob); err != nil {
			r.log.Warn("outbox send failed", zap.Uint64("id", ob.ID), zap.Int("retry", ob.Retry), zap.Error(err))
			if err = r.repo.RetryUpdate(ctx, ob.ID); err != nil {
				r.log.Error("outbox retry update failed", zap.Uint64("id", ob.ID), zap.Error(err))
			}
			continue
		}
		if err = r.repo.SuccessUpdate(ctx, ob.ID); err != nil {
			r.log.Error("outbox success update failed", zap.Uint64("id", ob.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// LogSender 未配置 Kafka 时使用：只写日志
func LogSender(log *zap.Logger) Sender {
	return func(ctx context.Context, ob *model.SocialOutbox) error {
		log.Info("outbox event",
			zap.String("type", ob.EventType),
			zap.Uint64("follower", ob.Follower),
			zap.Uint64("followee", ob.Followee),
			zap.String("payload", ob.Payload))
		return nil
	}
}

// KafkaSender 以 follower id 为 key 投递到 Kafka，保证同一用户事件有序
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ob *model.SocialOutbox) error {
		return p.Send(ctx, pkg.MakeKeyFromID(ob.Follower), []byte(ob.Payload))
	}
}

// ReconcilerRun 对账定时任务启动器
func (r *FollowCountReconciler) ReconcilerRun(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce 遍历全部用户，按 follow 表修正计数，返回修正的用户数
func (r *FollowCountReconciler) ReconcileOnce(ctx context.Context) int {
	fixed := 0
	var lastID uint64
	for {
		users, next, err := r.repo.ReconcileList(ctx, r.batchSize, lastID)
		if err != nil {
			r.log.Error("reconcile list failed", zap.Error(err))
			return fixed
		}
		if len(users) == 0 {
			return fixed
		}
		for _, u := range users {
			// 先在follow表查询真实值，再和user表比对更新
			realFollowing, err := r.repo.RealFollowings(ctx, u.ID)
			if err != nil {
				r.log.Error("reconcile count followings failed", zap.Uint64("user_id", u.ID), zap.Error(err))
				continue
			}
			realFollower, err := r.repo.RealFollowers(ctx, u.ID)
			if err != nil {
				r.log.Error("reconcile count followers failed", zap.Uint64("user_id", u.ID), zap.Error(err))
				continue
			}
			changed := false
			if realFollowing != u.FollowingCount {
				if err = r.repo.ReconcileFollowings(ctx, u.ID, realFollowing); err != nil {
					r.log.Error("reconcile followings update failed", zap.Uint64("user_id", u.ID), zap.Error(err))
				} else {
					changed = true
				}
			}
			if realFollower != u.FollowerCount {
				if err = r.repo.ReconcileFollowers(ctx, u.ID, realFollower); err != nil {
					r.log.Error("reconcile followers update failed", zap.Uint64("user_id", u.ID), zap.Error(err))
				} else {
					changed = true
				}
			}
			if changed {
				fixed++
			}
		}
		lastID = next
	}
}
