package clientstate

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/notebook"
)

func openTest(t *testing.T) *State {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestState_SessionID_RoundTrip(t *testing.T) {
	t.Parallel()
	s := openTest(t)

	id, err := s.SessionID()
	if err != nil {
		t.Fatalf("SessionID: %v", err)
	}
	if id != "" {
		t.Fatalf("fresh state has session id %q", id)
	}

	if err := s.SetSessionID("abc"); err != nil {
		t.Fatalf("SetSessionID: %v", err)
	}
	if err := s.SetSessionID("def"); err != nil {
		t.Fatalf("second SetSessionID: %v", err)
	}
	id, _ = s.SessionID()
	if id != "def" {
		t.Fatalf("id = %q", id)
	}

	if err := s.ClearSessionID(); err != nil {
		t.Fatalf("ClearSessionID: %v", err)
	}
	id, _ = s.SessionID()
	if id != "" {
		t.Fatalf("id after clear = %q", id)
	}
}

func TestState_Tokens_RoundTrip(t *testing.T) {
	t.Parallel()
	s := openTest(t)

	if _, ok, err := s.Tokens(); err != nil || ok {
		t.Fatalf("fresh state: ok=%v err=%v", ok, err)
	}

	want := model.Tokens{
		AccessToken:  "acc",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		User: model.UserInfo{
			ID:        uuid.Must(uuid.NewV4()),
			Email:     "7@tg.fleets.local",
			FirstName: "Ada",
		},
	}
	if err := s.SetTokens(want); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	got, ok, err := s.Tokens()
	if err != nil || !ok {
		t.Fatalf("Tokens: ok=%v err=%v", ok, err)
	}
	if got.AccessToken != want.AccessToken || got.User.ID != want.User.ID || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if err := s.ClearTokens(); err != nil {
		t.Fatalf("ClearTokens: %v", err)
	}
	if _, ok, _ := s.Tokens(); ok {
		t.Fatalf("tokens survived clear")
	}
}

func TestState_Snapshot_PreservesOrder(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	userID := uuid.Must(uuid.NewV4())
	base := time.Now().UTC().Truncate(time.Second)

	notes := []model.Note{
		{ID: uuid.Must(uuid.NewV4()), UserID: userID, Content: "first", CreatedAt: base, UpdatedAt: base},
		{
			ID: uuid.Must(uuid.NewV4()), UserID: userID, Content: "second",
			Attachment: &model.Attachment{URL: "/files/a.png", Kind: "image/png", Name: "a.png"},
			CreatedAt:  base.Add(time.Minute), UpdatedAt: base.Add(time.Minute),
		},
	}
	if err := s.SaveSnapshot(notes); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got) != 2 || got[0].Content != "first" || got[1].Content != "second" {
		t.Fatalf("snapshot = %+v", got)
	}
	if got[1].Attachment == nil || got[1].Attachment.URL != "/files/a.png" {
		t.Fatalf("attachment lost: %+v", got[1].Attachment)
	}

	// a new save replaces, not appends
	if err := s.SaveSnapshot(notes[:1]); err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}
	got, _ = s.Snapshot()
	if len(got) != 1 {
		t.Fatalf("len = %d after replace", len(got))
	}
}

func TestState_OpQueue_FIFO(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	userID := uuid.Must(uuid.NewV4())
	now := time.Now().UTC().Truncate(time.Second)

	a := model.Note{ID: uuid.Must(uuid.NewV4()), UserID: userID, Content: "a", CreatedAt: now, UpdatedAt: now}
	b := model.Note{ID: uuid.Must(uuid.NewV4()), UserID: userID, Content: "b", CreatedAt: now, UpdatedAt: now}
	if err := s.Enqueue(notebook.Op{Kind: notebook.OpCreate, Note: a}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue(notebook.Op{Kind: notebook.OpDelete, Note: b}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ops, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len = %d", len(ops))
	}
	if ops[0].Op.Kind != notebook.OpCreate || ops[0].Op.Note.ID != a.ID {
		t.Fatalf("first op = %+v", ops[0])
	}
	if ops[1].Op.Kind != notebook.OpDelete || ops[1].Op.Note.ID != b.ID {
		t.Fatalf("second op = %+v", ops[1])
	}

	if err := s.Delete(ops[0].Seq); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ops, _ = s.List()
	if len(ops) != 1 || ops[0].Op.Note.ID != b.ID {
		t.Fatalf("queue after delete = %+v", ops)
	}
}
