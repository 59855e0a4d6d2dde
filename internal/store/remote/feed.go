package remote

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/store"
)

// feedSub is one live websocket attachment to /api/feed.
type feedSub struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	events chan model.ChangeEvent

	mu   sync.Mutex
	err  error
	once sync.Once
}

// Subscribe dials the change-feed websocket. Events arrive on the returned
// subscription in server publish order until the connection drops or Close
// is called.
func (c *Client) Subscribe(ctx context.Context, _ uuid.UUID) (store.Subscription, error) {
	url := c.base + "/api/feed"
	// the websocket library accepts http(s) URLs as well, but be explicit
	url = strings.Replace(url, "http", "ws", 1)

	hdr := http.Header{}
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &feedSub{
		conn:   conn,
		cancel: cancel,
		events: make(chan model.ChangeEvent),
	}
	go sub.read(runCtx)
	return sub, nil
}

func (s *feedSub) read(ctx context.Context) {
	defer close(s.events)
	for {
		var w convert.EventWire
		if err := wsjson.Read(ctx, s.conn, &w); err != nil {
			s.fail(ctx, err)
			return
		}
		ev, err := convert.FromWireEvent(w)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// fail records the cause unless the subscription was closed deliberately.
func (s *feedSub) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *feedSub) Events() <-chan model.ChangeEvent { return s.events }

func (s *feedSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *feedSub) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}
