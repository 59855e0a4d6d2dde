package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClient_StatusCodesMapToSentinels(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, errs.ErrNotFound},
		{http.StatusConflict, errs.ErrAlreadyExists},
		{http.StatusUnauthorized, errs.ErrUnauthorized},
		{http.StatusTooManyRequests, errs.ErrRateLimited},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.code)
		})
		err := c.DeleteNote(context.Background(), uuid.Nil, uuid.Must(uuid.NewV4()))
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: err = %v, want %v", tc.code, err, tc.want)
		}
	}
}

func TestClient_UnexpectedStatusCarriesBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "pool exhausted", http.StatusInternalServerError)
	})
	err := c.InsertNote(context.Background(), model.Note{
		ID:     uuid.Must(uuid.NewV4()),
		UserID: uuid.Must(uuid.NewV4()),
	})
	if err == nil {
		t.Fatalf("want error")
	}
	if got := err.Error(); got != "server: 500 Internal Server Error: pool exhausted" {
		t.Fatalf("err = %q", got)
	}
}

func TestClient_InsertNote_SendsWireShapeAndBearer(t *testing.T) {
	t.Parallel()
	n := model.Note{
		ID:        uuid.Must(uuid.NewV4()),
		UserID:    uuid.Must(uuid.NewV4()),
		Content:   "hello",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	var gotAuth string
	var gotWire convert.NoteWire
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notes" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotWire); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})
	c.SetToken("tok-abc")

	if err := c.InsertNote(context.Background(), n); err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotWire.ID != n.ID.String() || gotWire.Content != "hello" {
		t.Fatalf("wire = %+v", gotWire)
	}
}

func TestClient_ListNotes_DecodesListing(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.NewV4())
	userID := uuid.Must(uuid.NewV4())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notes" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]convert.NoteWire{{
			ID:      id.String(),
			UserID:  userID.String(),
			Content: "first",
			FileURL: "http://s/files/a.png",
		}})
	})

	notes, err := c.ListNotes(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != id {
		t.Fatalf("notes = %+v", notes)
	}
	if notes[0].Attachment == nil || notes[0].Attachment.URL != "http://s/files/a.png" {
		t.Fatalf("attachment lost: %+v", notes[0].Attachment)
	}
}

func TestClient_ListNotes_RejectsBadRecord(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]convert.NoteWire{{ID: "not-a-uuid", UserID: "also-not"}})
	})
	if _, err := c.ListNotes(context.Background(), uuid.Nil); err == nil {
		t.Fatalf("want error for malformed note id")
	}
}

func TestClient_UploadBlob_PostsMultipart(t *testing.T) {
	t.Parallel()
	var gotName, gotType string
	var gotData []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/files" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotData, _ = io.ReadAll(f)
		json.NewEncoder(w).Encode(map[string]string{"url": "/files/photo.png"})
	})

	url, err := c.UploadBlob(context.Background(), "photo.png", "image/png", []byte{0x89, 0x50})
	if err != nil {
		t.Fatalf("UploadBlob: %v", err)
	}
	if gotName != "photo.png" || gotType != "image/png" || len(gotData) != 2 {
		t.Fatalf("part = %q %q %v", gotName, gotType, gotData)
	}
	// the relative URL from the server comes back resolved against the base
	if !strings.HasPrefix(url, "http://") || !strings.HasSuffix(url, "/files/photo.png") {
		t.Fatalf("url = %q", url)
	}
}

func TestClient_Claim_PendingAndTokens(t *testing.T) {
	t.Parallel()
	userID := uuid.Must(uuid.NewV4())
	pending := true
	var gotSession string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/claim" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var in struct {
			SessionID string `json:"session_id"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		gotSession = in.SessionID
		if pending {
			json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
			return
		}
		json.NewEncoder(w).Encode(convert.TokensWire{
			AccessToken:  "jwt-here",
			RefreshToken: "refresh-here",
			User:         convert.UserWire{ID: userID.String(), Email: "42@tg.fleets.local"},
		})
	})

	_, err := c.Claim(context.Background(), "sess-1")
	if !errors.Is(err, errs.ErrSessionPending) {
		t.Fatalf("pending claim: err = %v", err)
	}
	if gotSession != "sess-1" {
		t.Fatalf("session_id = %q", gotSession)
	}

	pending = false
	tokens, err := c.Claim(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if tokens.AccessToken != "jwt-here" || tokens.User.ID != userID {
		t.Fatalf("tokens = %+v", tokens)
	}
}

func TestClient_MarkInboxProcessed_PatchesStatus(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.NewV4())
	var gotPath string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})

	if err := c.MarkInboxProcessed(context.Background(), id); err != nil {
		t.Fatalf("MarkInboxProcessed: %v", err)
	}
	if gotPath != "/api/inbox/"+id.String() {
		t.Fatalf("path = %s", gotPath)
	}
	if gotBody["status"] != "processed" {
		t.Fatalf("body = %v", gotBody)
	}
}
