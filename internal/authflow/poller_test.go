package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

// fakeClaimer succeeds after a configured number of pending answers.
type fakeClaimer struct {
	mu           sync.Mutex
	pendingFirst int
	calls        int
	lastID       string
	claimErr     error
}

func (f *fakeClaimer) Claim(_ context.Context, id string) (model.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastID = id
	if f.claimErr != nil {
		return model.Tokens{}, f.claimErr
	}
	if f.calls <= f.pendingFirst {
		return model.Tokens{}, errs.ErrSessionPending
	}
	return model.Tokens{
		AccessToken: "granted",
		User:        model.UserInfo{ID: uuid.Must(uuid.NewV4())},
	}, nil
}

func (f *fakeClaimer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memPersist struct {
	mu sync.Mutex
	id string
}

func (p *memPersist) SessionID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, nil
}
func (p *memPersist) SetSessionID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	return nil
}
func (p *memPersist) ClearSessionID() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = ""
	return nil
}
func (p *memPersist) current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func TestPoller_SessionID_MintedOncePersisted(t *testing.T) {
	t.Parallel()
	p := NewPoller(&fakeClaimer{}, &memPersist{}, zap.NewNop())

	id1, err := p.SessionID()
	if err != nil {
		t.Fatalf("SessionID: %v", err)
	}
	if _, err := uuid.FromString(id1); err != nil {
		t.Fatalf("session id %q is not a uuid: %v", id1, err)
	}
	// the same in-flight attempt survives a reload
	id2, err := p.SessionID()
	if err != nil {
		t.Fatalf("second SessionID: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("session id changed across calls: %q != %q", id1, id2)
	}
}

func TestPoller_Run_ClaimsExactlyOnce(t *testing.T) {
	t.Parallel()
	claimer := &fakeClaimer{pendingFirst: 2}
	persist := &memPersist{}
	p := NewPoller(claimer, persist, zap.NewNop(), WithInterval(10*time.Millisecond))

	tokens, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tokens.AccessToken != "granted" {
		t.Fatalf("tokens = %+v", tokens)
	}
	if claimer.callCount() != 3 {
		t.Fatalf("claim calls = %d, want 3 (two pending + one success)", claimer.callCount())
	}
	if persist.current() != "" {
		t.Fatalf("claimed session id was not cleared")
	}
}

func TestPoller_Run_ResumesPersistedID(t *testing.T) {
	t.Parallel()
	persist := &memPersist{id: "restored-session-id"}
	claimer := &fakeClaimer{}
	p := NewPoller(claimer, persist, zap.NewNop(), WithInterval(10*time.Millisecond))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	claimer.mu.Lock()
	defer claimer.mu.Unlock()
	if claimer.lastID != "restored-session-id" {
		t.Fatalf("polled with %q, want the persisted id", claimer.lastID)
	}
}

func TestPoller_Run_CancelClearsUnclaimedID(t *testing.T) {
	t.Parallel()
	persist := &memPersist{}
	claimer := &fakeClaimer{pendingFirst: 1 << 30} // never succeeds
	p := NewPoller(claimer, persist, zap.NewNop(), WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_, err := p.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	// a later attempt must start fresh rather than reuse a stale id
	if persist.current() != "" {
		t.Fatalf("abandoned session id was kept: %q", persist.current())
	}
}

func TestPoller_Wake_FiresBurst(t *testing.T) {
	t.Parallel()
	claimer := &fakeClaimer{pendingFirst: 1 << 30}
	p := NewPoller(claimer, &memPersist{}, zap.NewNop(), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Run(ctx)
	}()

	// only the immediate first attempt has happened; the hour ticker is idle
	waitCalls(t, claimer, 1)
	p.Wake()
	// burst: +0ms and +500ms checks land well before the ticker would
	waitCalls(t, claimer, 3)

	cancel()
	<-done
}

func TestPoller_Run_TransientErrorsKeepPolling(t *testing.T) {
	t.Parallel()
	claimer := &fakeClaimer{claimErr: errors.New("connection refused")}
	p := NewPoller(claimer, &memPersist{}, zap.NewNop(), WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if claimer.callCount() < 3 {
		t.Fatalf("transient errors stopped the loop after %d calls", claimer.callCount())
	}
}

func waitCalls(t *testing.T, c *fakeClaimer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.callCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("claim calls = %d, want >= %d", c.callCount(), n)
}
