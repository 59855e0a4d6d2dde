// Package authflow implements the device side of the bot login handshake:
// it mints a session id, hands it to the user to forward to the bot, and
// polls the broker until the credential record appears and is claimed.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

// Claimer issues one claim attempt. An unfulfilled session reports
// errs.ErrSessionPending; any other error is transient and retried.
type Claimer interface {
	Claim(ctx context.Context, sessionID string) (model.Tokens, error)
}

// Persistence keeps the in-flight session id across process restarts, so an
// interrupted login attempt resumes with the same id instead of orphaning
// the one the user already sent to the bot.
type Persistence interface {
	SessionID() (string, error)
	SetSessionID(id string) error
	ClearSessionID() error
}

const defaultInterval = 2 * time.Second

// burstDelays staggers the extra checks fired on a foreground wake, covering
// a bot-side write that was still settling while the process was suspended.
var burstDelays = []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}

// Poller drives the claim loop for one login attempt. Polls are at-least-once;
// the broker's single-claim delete makes repeats safe, and the poller stops on
// the first success so credentials are applied exactly once.
type Poller struct {
	claimer  Claimer
	persist  Persistence
	log      *zap.Logger
	interval time.Duration
	wake     chan struct{}
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

func NewPoller(c Claimer, persist Persistence, log *zap.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		claimer:  c,
		persist:  persist,
		log:      log,
		interval: defaultInterval,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SessionID returns the persisted in-flight session id, minting and persisting
// a fresh one when none exists.
func (p *Poller) SessionID() (string, error) {
	id, err := p.persist.SessionID()
	if err != nil {
		return "", fmt.Errorf("load session id: %w", err)
	}
	if id != "" {
		return id, nil
	}
	u, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("mint session id: %w", err)
	}
	id = u.String()
	if err := p.persist.SetSessionID(id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	return id, nil
}

// Wake requests an immediate out-of-band check plus a staggered burst of
// re-checks. Safe to call from any goroutine; coalesces while a burst is
// still pending.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run polls until the session is claimed or ctx is cancelled. On success the
// persisted session id is cleared and the tokens returned. On cancellation
// the id is cleared too, so the next attempt starts fresh rather than reusing
// a possibly-stale id.
func (p *Poller) Run(ctx context.Context) (model.Tokens, error) {
	id, err := p.SessionID()
	if err != nil {
		return model.Tokens{}, err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if tok, ok := p.attempt(ctx, id); ok {
		return tok, nil
	}
	for {
		select {
		case <-ctx.Done():
			if err := p.persist.ClearSessionID(); err != nil {
				p.log.Warn("clear session id", zap.Error(err))
			}
			return model.Tokens{}, ctx.Err()
		case <-p.wake:
			if tok, ok := p.burst(ctx, id); ok {
				return tok, nil
			}
			ticker.Reset(p.interval)
		case <-ticker.C:
			if tok, ok := p.attempt(ctx, id); ok {
				return tok, nil
			}
		}
	}
}

// burst runs the staggered wake checks, bailing out early on success or
// cancellation.
func (p *Poller) burst(ctx context.Context, id string) (model.Tokens, bool) {
	start := time.Now()
	for _, d := range burstDelays {
		if wait := d - time.Since(start); wait > 0 {
			select {
			case <-ctx.Done():
				return model.Tokens{}, false
			case <-time.After(wait):
			}
		}
		if tok, ok := p.attempt(ctx, id); ok {
			return tok, true
		}
	}
	return model.Tokens{}, false
}

func (p *Poller) attempt(ctx context.Context, id string) (model.Tokens, bool) {
	tok, err := p.claimer.Claim(ctx, id)
	switch {
	case err == nil:
		if err := p.persist.ClearSessionID(); err != nil {
			p.log.Warn("clear session id", zap.Error(err))
		}
		return tok, true
	case errors.Is(err, errs.ErrSessionPending):
		return model.Tokens{}, false
	default:
		p.log.Debug("claim attempt failed", zap.Error(err))
		return model.Tokens{}, false
	}
}
