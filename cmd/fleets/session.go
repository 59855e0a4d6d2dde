package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/clientstate"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/notebook"
	"github.com/fleetsapp/fleets/internal/store/remote"
	"github.com/fleetsapp/fleets/internal/syncer"
)

var errNotLoggedIn = errors.New("not logged in, run `fleets login` first")

// engine bundles the client-side sync machinery for one command invocation.
type engine struct {
	state  *clientstate.State
	client *remote.Client
	cache  *notebook.Cache
	disp   *notebook.Dispatcher
	sync   *syncer.Syncer
	log    *zap.Logger
	tokens model.Tokens
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openEngine opens local state, requires a stored session and wires the
// cache, dispatcher and syncer around the remote client. When online it first
// replays any queued offline writes, then attaches the change feed and seeds
// the cache from the server; when that fails (or offline is requested) the
// cache is seeded from the last saved snapshot instead.
func openEngine(ctx context.Context, online bool) (*engine, error) {
	st, err := clientstate.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening local state: %w", err)
	}

	tokens, ok, err := st.Tokens()
	if err != nil {
		st.Close()
		return nil, err
	}
	if !ok {
		st.Close()
		return nil, errNotLoggedIn
	}

	log := newLogger()
	client := remote.New(serverURL)
	client.SetToken(tokens.AccessToken)

	cache := notebook.NewCache()
	disp := notebook.NewDispatcher(cache, client, tokens.User.ID, log,
		notebook.WithBlobStore(client),
		notebook.WithOpQueue(st),
		notebook.WithNotice(func(msg string) { printWarning("%s", msg) }),
	)

	e := &engine{
		state:  st,
		client: client,
		cache:  cache,
		disp:   disp,
		sync:   syncer.New(client, cache, log),
		log:    log,
		tokens: tokens,
	}

	if online {
		if err := notebook.Replay(ctx, st, client, log); err != nil {
			log.Warn("offline queue replay incomplete", zap.Error(err))
		}
		if err := e.sync.Start(ctx, tokens.User.ID); err != nil {
			printWarning("server unreachable, showing local snapshot")
			e.seedFromSnapshot()
		}
	} else {
		e.seedFromSnapshot()
	}
	return e, nil
}

func (e *engine) seedFromSnapshot() {
	notes, err := e.state.Snapshot()
	if err != nil {
		e.log.Warn("loading snapshot", zap.Error(err))
		return
	}
	e.cache.ReplaceAll(notes)
}

// close flushes pending writes, saves the cache as the new snapshot and
// releases everything.
func (e *engine) close() {
	e.disp.Close()
	e.sync.Stop()
	if err := e.state.SaveSnapshot(e.cache.Snapshot()); err != nil {
		e.log.Warn("saving snapshot", zap.Error(err))
	}
	e.state.Close()
}
