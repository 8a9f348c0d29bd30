package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"order-lifecycle-reconciler/internal/config"
	"order-lifecycle-reconciler/internal/history"
	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/rabbit"
	"order-lifecycle-reconciler/internal/repository"
	"order-lifecycle-reconciler/internal/service"
	"order-lifecycle-reconciler/internal/store"
	"order-lifecycle-reconciler/internal/types"
)

const serviceName = "order-lifecycle-reconciler"

var version = "dev"

// app holds everything a command needs; close releases it in reverse order.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	svc       *service.LifecycleService
	auth      *service.AuthService
	consumeCh *amqp091.Channel
	closers   []func(context.Context) error
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error(ctx, types.ActionGracefulShutdown, "error while closing", err)
		}
	}
}

func bootstrap(ctx context.Context, withBroker bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.InitLogger(serviceName, logger.ParseLevel(cfg.LogLevel))
	log.Info(ctx, types.ActionConfigLoaded, "configuration loaded",
		"store_driver", cfg.StoreDriver,
		"store_root", cfg.StoreRoot,
		"collections", cfg.Lifecycle.Collections,
		"dwell", cfg.Lifecycle.Dwell.String(),
	)

	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close(context.WithoutCancel(ctx))
		}
	}()

	tree, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	runs, err := a.openHistory(ctx)
	if err != nil {
		return nil, err
	}

	var opts []service.Option
	if withBroker && cfg.RabbitURL != "" {
		conn, consumeCh, publishCh, err := rabbit.Connect(ctx, cfg.RabbitURL, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
		publisher, err := rabbit.NewPublisher(publishCh, cfg.StatusExchange, log)
		if err != nil {
			log.Error(ctx, types.ActionRabbitMQSetupFailed, "failed to set up status exchange", err)
			return nil, err
		}
		a.consumeCh = consumeCh
		opts = append(opts, service.WithPublisher(publisher))
	}

	orders := repository.NewTreeOrderRepository(tree, cfg.StoreRoot, log)
	issues := repository.NewTreeIssueRepository(tree, cfg.StoreRoot, cfg.IssuesCollection)
	gate := service.NewIssueGate(issues, log)

	reconciler := service.NewReconciler(orders, gate, cfg.Lifecycle, log, opts...)
	stats := service.NewStatisticsAggregator(orders, gate, log, nil)
	a.svc = service.NewLifecycleService(reconciler, stats, orders, gate, runs, log)
	a.auth = service.NewAuthService(cfg.AuthURL, cfg.OperatorToken, nil)

	ok = true
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.Tree, error) {
	switch a.cfg.StoreDriver {
	case config.StoreMemory:
		mem := store.NewMemory()
		if a.cfg.StoreSeedFile != "" {
			f, err := os.Open(a.cfg.StoreSeedFile)
			if err != nil {
				return nil, fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			if err := mem.LoadJSON(f); err != nil {
				return nil, err
			}
			a.log.Info(ctx, types.ActionStoreSeeded, "memory store seeded", "file", a.cfg.StoreSeedFile)
		}
		return mem, nil

	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(a.cfg.MongoURI))
		if err != nil {
			a.log.Error(ctx, types.ActionStoreConnectFailed, "failed to connect to MongoDB", err)
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		if err := client.Ping(connectCtx, nil); err != nil {
			a.log.Error(ctx, types.ActionStoreConnectFailed, "failed to ping MongoDB", err)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}

		tree, err := store.NewMongo(client.Database(a.cfg.MongoDBName), a.cfg.StoreRoot)
		if err != nil {
			return nil, err
		}
		a.log.Info(ctx, types.ActionStoreConnected, "connected to MongoDB", "database", a.cfg.MongoDBName)
		return tree, nil
	}
	return nil, errors.New("unsupported store driver " + a.cfg.StoreDriver)
}

func (a *app) openHistory(ctx context.Context) (service.RunRecorder, error) {
	if a.cfg.DatabaseURL == "" {
		return history.NewMemory(history.DefaultCapacity), nil
	}
	pg, err := history.NewPostgres(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		pg.Close()
		return nil
	})
	a.log.Info(ctx, types.ActionHistoryConnected, "run history stored in Postgres")
	return pg, nil
}
