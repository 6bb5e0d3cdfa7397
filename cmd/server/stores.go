package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/config"
	"github.com/no-abramov/todoapi/pkg/storage"
	"github.com/no-abramov/todoapi/pkg/storage/memdb"
	"github.com/no-abramov/todoapi/pkg/storage/mongo"
	"github.com/no-abramov/todoapi/pkg/storage/postgres"
	"github.com/no-abramov/todoapi/pkg/storage/sqlite"
)

type stores struct {
	todos   storage.Todos
	logs    storage.RequestLogs
	closers []func(ctx context.Context)
}

func (s *stores) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
}

// openStores connects the todo store and the request log store selected in cfg
// and makes sure their schema exists.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := stores{}

	var db storage.Storage
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.Storage.Postgres.ConString())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrConnectDB, err)
		}
		st.closers = append(st.closers, func(context.Context) { pg.Close() })

		if err := pg.Ping(ctx); err != nil {
			st.close(ctx)
			return nil, fmt.Errorf("%w: %v", storage.ErrDBNotResponding, err)
		}
		if err := pg.Init(ctx); err != nil {
			st.close(ctx)
			return nil, err
		}
		log.Infof("[server] connected to postgres: %s", cfg.Storage.Postgres)
		db = pg

	case config.DriverSQLite:
		lite, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrConnectDB, err)
		}
		st.closers = append(st.closers, func(context.Context) {
			if err := lite.Close(); err != nil {
				log.Errorf("[server] failed to close sqlite: %v", err)
			}
		})

		if err := lite.Init(ctx); err != nil {
			st.close(ctx)
			return nil, err
		}
		log.Infof("[server] using sqlite database %s", cfg.Storage.SQLitePath)
		db = lite

	default:
		log.Info("[server] run server with in memory DB")
		db = memdb.New()
	}

	st.todos = db
	st.logs = db

	if cfg.RequestLog.Driver == config.DriverMongo {
		mdb, err := mongo.New(ctx, &cfg.RequestLog.Mongo)
		if err != nil {
			st.close(ctx)
			return nil, fmt.Errorf("%w: %v", storage.ErrConnectDB, err)
		}
		st.closers = append(st.closers, func(ctx context.Context) {
			if err := mdb.Close(ctx); err != nil {
				log.Errorf("[server] failed to disconnect from mongo: %v", err)
			}
		})

		if err := mdb.Ping(ctx); err != nil {
			st.close(ctx)
			return nil, fmt.Errorf("%w: %v", storage.ErrDBNotResponding, err)
		}
		if err := mdb.Init(ctx); err != nil {
			st.close(ctx)
			return nil, err
		}
		log.Infof("[server] request logs go to mongo: %s", cfg.RequestLog.Mongo)
		st.logs = mdb
	}

	return &st, nil
}
