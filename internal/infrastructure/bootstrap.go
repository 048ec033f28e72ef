package infrastructure

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"accord/internal/bridge"
	"accord/internal/config"
	"accord/internal/identity"
	"accord/internal/ledger"
	"accord/internal/store/postgres"
	"accord/internal/store/rediskv"
	transportHTTP "accord/internal/transport/http"
	transportNATS "accord/internal/transport/nats"
	"accord/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
//
// Two modes, one schema: with Postgres configured it is the primary store
// and the Redis cache is kept warm by the mirror worker; without it the
// cache itself is the store (demo/offline mode).
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		_ = rdb.Close()
	})

	cache := rediskv.New(rdb)

	// ── Store selection ───────────────────────────────────────────────────────
	var st ledger.Store = cache
	remote := false
	if cfg.RemoteEnabled() {
		db, err := connectPostgres(cfg.DSN())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, db.Close)
		st = postgres.New(db)
		remote = true
	}

	// ── Bus and bridge ────────────────────────────────────────────────────────
	var nc *nats.Conn
	var bus ledger.MessageBus
	if cfg.NatsEnabled() {
		nc, err = connectNats(ctx, cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		bus = transportNATS.NewBus(nc)
	}

	svc := ledger.New(st, bus, slog.Default())
	br := bridge.New(nc, st, cfg.PollInterval, slog.Default())

	// ── Servers ───────────────────────────────────────────────────────────────
	var servers []Server

	if nc != nil {
		// Cross-session commands arrive over NATS as well as HTTP.
		servers = append(servers, transportNATS.NewHandler(svc, nc))

		// Mirror the remote backend's mutations into the offline cache.
		if remote {
			servers = append(servers, worker.NewMirror(cache, nc, slog.Default()))
		}
	}

	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		resolver := identity.NewResolver(st)
		h := transportHTTP.NewHandler(svc, resolver, br)
		if !remote {
			// Demo mode: the cache is the store and may be wiped explicitly.
			h = h.WithResetter(cache)
		}
		servers = append(servers, transportHTTP.NewServer(addr, h))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
