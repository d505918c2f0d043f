// Command chatd hosts the community chat engine behind a websocket gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alumnihub/chat/chat/membership"
	"github.com/alumnihub/chat/chat/messages"
	"github.com/alumnihub/chat/chat/notify"
	"github.com/alumnihub/chat/chat/presence"
	"github.com/alumnihub/chat/chat/search"
	"github.com/alumnihub/chat/chat/session"
	"github.com/alumnihub/chat/chat/typing"
	"github.com/alumnihub/chat/gateway"
	"github.com/alumnihub/chat/instance"
	"github.com/alumnihub/chat/svc/mongo"
	"github.com/alumnihub/chat/svc/redis"
	"github.com/alumnihub/chat/svc/rmq"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("chatd, config")
	}
	logrus.SetLevel(cfg.LogLevel)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.StandardLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoInst, err := mongo.New(ctx, mongo.SetupOptions{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		Direct:   cfg.MongoDirect,
	})
	if err != nil {
		log.WithError(err).Fatal("chatd, mongo")
	}

	redisInst, err := redis.New(ctx, redis.SetupOptions{
		Addresses:  cfg.RedisAddresses,
		Password:   cfg.RedisPassword,
		Database:   cfg.RedisDatabase,
		Sentinel:   cfg.RedisSentinel,
		MasterName: cfg.RedisMaster,
	})
	if err != nil {
		log.WithError(err).Fatal("chatd, redis")
	}

	var sink notify.Sink = notify.Nop
	var rmqInst instance.RabbitMQ
	if cfg.RmqURI != "" {
		rmqInst, err = rmq.New(ctx, rmq.SetupOptions{URI: cfg.RmqURI, QueueName: cfg.NotifyQueue})
		if err != nil {
			log.WithError(err).Fatal("chatd, rmq")
		}
		sink = notify.NewRmqSink(rmqInst, cfg.NotifyQueue)
	} else {
		log.Warn("chatd, CHAT_RMQ_URI not set, notifications are dropped")
	}

	repo := messages.NewMongoRepository(mongoInst)
	mongoOracle := membership.NewMongoOracle(mongoInst)
	if err := mongo.EnsureIndexes(ctx, mongoInst, mongo.CollectionNameMessages, repo.Indexes()); err != nil {
		log.WithError(err).Fatal("chatd, message indexes")
	}
	if err := mongo.EnsureIndexes(ctx, mongoInst, mongo.CollectionNameCommunityMembers, mongoOracle.Indexes()); err != nil {
		log.WithError(err).Fatal("chatd, membership indexes")
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var oracle membership.Oracle = mongoOracle
	if cfg.MembershipTTL > 0 {
		cached := membership.NewCachedOracle(mongoOracle, redisInst, cfg.MembershipTTL, log)
		mongoOracle.NotifyChanges(redisInst)
		go cached.Listen(runCtx)
		oracle = cached
	}
	store := messages.New(repo, oracle, sink, messages.Config{Logger: log})
	sessions := session.NewService(session.Deps{
		Messages: store,
		Presence: presence.New(redisInst, presence.Config{Logger: log}),
		Typing:   typing.New(redisInst, typing.Config{Expiry: cfg.TypingExpiry, Logger: log}),
		Search:   search.New(repo, search.Config{Logger: log}),
		Oracle:   oracle,
	}, session.Config{
		Heartbeat:        cfg.Heartbeat,
		LocalTypingClear: cfg.LocalTypingClear,
		TokenSecret:      cfg.JwtSecret,
		TokenTTL:         cfg.TokenTTL,
		Logger:           log,
	})

	gw := gateway.New(sessions, gateway.Config{Logger: log})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("chatd, listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("chatd, http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", sig.String()).Info("chatd, shutting down")

	shutdown, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()

	if err := httpServer.Shutdown(shutdown); err != nil {
		log.WithError(err).Warn("chatd, http server forced to shutdown")
	}
	if err := gw.Close(shutdown); err != nil {
		log.WithError(err).Warn("chatd, sessions did not close in time")
	}
	stop()
	if rmqInst != nil {
		if err := rmqInst.Close(); err != nil {
			log.WithError(err).Warn("chatd, rmq close")
		}
	}
	if err := redisInst.Close(); err != nil {
		log.WithError(err).Warn("chatd, redis close")
	}
	if err := mongoInst.Disconnect(shutdown); err != nil {
		log.WithError(err).Warn("chatd, mongo disconnect")
	}
	log.Info("chatd, stopped")
}
