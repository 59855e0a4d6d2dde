// Package remote is the HTTP client for the fleets server. It implements the
// store boundaries consumed by the sync engine plus the claim call used by
// the login poller.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

const defaultTimeout = 30 * time.Second

// Client talks to one fleets server. The zero token is valid for the claim
// call only; everything under /api needs SetToken first.
type Client struct {
	base  string
	http  *http.Client
	token string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken installs the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusErr(resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// statusErr maps the server's status codes back onto the shared sentinels.
func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errs.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return errs.ErrAlreadyExists
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
}

// --- store.Store ---

func (c *Client) InsertNote(ctx context.Context, n model.Note) error {
	return c.do(ctx, http.MethodPost, "/api/notes", convert.ToWireNote(n), nil)
}

func (c *Client) UpdateNote(ctx context.Context, _ uuid.UUID, id uuid.UUID, patch model.NotePatch) error {
	body := map[string]any{}
	if patch.Content != nil {
		body["content"] = *patch.Content
	}
	if patch.Attachment != nil {
		body["file_url"] = patch.Attachment.URL
		body["file_type"] = patch.Attachment.Kind
		body["file_name"] = patch.Attachment.Name
	}
	if patch.IsPinned != nil {
		body["is_pinned"] = *patch.IsPinned
	}
	if !patch.UpdatedAt.IsZero() {
		body["updated_at"] = patch.UpdatedAt
	}
	return c.do(ctx, http.MethodPatch, "/api/notes/"+id.String(), body, nil)
}

func (c *Client) DeleteNote(ctx context.Context, _ uuid.UUID, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/notes/"+id.String(), nil, nil)
}

func (c *Client) ListNotes(ctx context.Context, _ uuid.UUID) ([]model.Note, error) {
	var wires []convert.NoteWire
	if err := c.do(ctx, http.MethodGet, "/api/notes", nil, &wires); err != nil {
		return nil, err
	}
	notes := make([]model.Note, 0, len(wires))
	for _, w := range wires {
		n, err := convert.FromWireNote(w)
		if err != nil {
			return nil, fmt.Errorf("bad note in listing: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// --- store.BlobStore ---

func (c *Client) UploadBlob(ctx context.Context, name, contentType string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return c.base + out.URL, nil
}

// --- authflow.Claimer ---

// Claim polls the handshake session. A pending (or already-claimed) session
// returns errs.ErrSessionPending; the caller keeps polling.
func (c *Client) Claim(ctx context.Context, sessionID string) (model.Tokens, error) {
	in := map[string]string{"session_id": sessionID}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/auth/claim", in, &raw); err != nil {
		return model.Tokens{}, err
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &status); err == nil && status.Status == "pending" {
		return model.Tokens{}, errs.ErrSessionPending
	}
	var w convert.TokensWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Tokens{}, fmt.Errorf("decode tokens: %w", err)
	}
	return convert.FromWireTokens(w)
}

// --- inbox ---

func (c *Client) ListInbox(ctx context.Context) ([]model.InboxRecord, error) {
	var wires []convert.InboxWire
	if err := c.do(ctx, http.MethodGet, "/api/inbox", nil, &wires); err != nil {
		return nil, err
	}
	recs := make([]model.InboxRecord, 0, len(wires))
	for _, w := range wires {
		rec, err := convert.FromWireInbox(w)
		if err != nil {
			return nil, fmt.Errorf("bad inbox record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (c *Client) Capture(ctx context.Context, items []model.InboxItem) error {
	in := map[string]any{"items": items}
	return c.do(ctx, http.MethodPost, "/api/inbox", in, nil)
}

func (c *Client) MarkInboxProcessed(ctx context.Context, id uuid.UUID) error {
	in := map[string]string{"status": "processed"}
	return c.do(ctx, http.MethodPatch, "/api/inbox/"+id.String(), in, nil)
}
