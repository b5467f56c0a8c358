package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"yatube/internal/config"
	"yatube/internal/pkg"
	"yatube/internal/repository/mysql"
	"yatube/internal/repository/redis"
	"yatube/internal/router"
	"yatube/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := pkg.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err = mysql.InitDB(cfg.MySQL.DSN); err != nil {
		log.Fatal("connect mysql failed", zap.Error(err))
	}
	// 自动建表
	if err = mysql.AutoMigrate(mysql.DB); err != nil {
		log.Fatal("auto migrate failed", zap.Error(err))
	}

	// 连接redis
	rdb, err := redis.Init(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("connect redis failed", zap.Error(err))
	}
	defer func() { _ = redis.Close() }()

	var cache service.FeedCache = service.NopFeedCache{}
	if cfg.Cache.FeedTTL > 0 {
		cache = redis.NewFeedCache(rdb, cfg.Cache.FeedTTL)
	}

	var mailer pkg.Mailer
	if cfg.SMTP.Enabled() {
		mailer = pkg.NewSMTPMailer(cfg.SMTP)
	}

	sender := service.LogSender(log)
	if cfg.Kafka.Enabled() {
		producer, err := pkg.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka producer failed", zap.Error(err))
		}
		defer func() { _ = producer.Close() }()
		sender = service.KafkaSender(producer)
		log.Info("outbox relays to kafka", zap.String("topic", producer.Topic()))
	}

	db := mysql.DB
	issuer := pkg.NewTokenIssuer(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	tokens := redis.NewTokenRepository(rdb, issuer.AccessTTL)

	deps := router.Deps{
		Feed:      service.NewFeedService(db, cache, log),
		Posts:     service.NewPostService(db, pkg.NewMediaStore(cfg.Media.Root, cfg.Media.MaxUploadBytes), cache, log),
		Comments:  service.NewCommentService(db),
		Groups:    service.NewGroupService(db, cache, log),
		Follows:   service.NewFollowService(db, cache, log),
		Users:     service.NewUserService(db, tokens, issuer, mailer, cache, log),
		Log:       log,
		LoginURL:  cfg.Server.LoginURL,
		MediaRoot: cfg.Media.Root,
		CookieTTL: issuer.AccessTTL,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 后台任务：outbox 投递与关注计数对账
	relayer := service.NewOutboxRelayer(db, sender, cfg.Worker.OutboxBatchSize, cfg.Worker.OutboxInterval, log)
	go relayer.Run(ctx)
	reconciler := service.NewFollowCountReconciler(db, cfg.Worker.ReconcileBatch, cfg.Worker.ReconcileInterval, log)
	go reconciler.ReconcilerRun(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.InitRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("server started", zap.String("addr", cfg.Server.Addr))
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", zap.Error(err))
	}
}
