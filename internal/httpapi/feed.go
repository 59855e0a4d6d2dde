package httpapi

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/fleetsapp/fleets/internal/convert"
)

// handleFeed upgrades to a websocket and streams the owner's change events
// in publish order. One connection carries one subscription; the hub drops
// lagging consumers, which surfaces here as a closed channel.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("feed: accept failed", zap.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	sub, err := s.notes.Subscribe(userID)
	if err != nil {
		c.Close(websocket.StatusTryAgainLater, "feed unavailable")
		return
	}
	defer sub.Close()

	// reads are discarded; CloseRead cancels ctx when the peer goes away
	ctx := c.CloseRead(r.Context())

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				c.Close(websocket.StatusTryAgainLater, "feed closed")
				return
			}
			if err := wsjson.Write(ctx, c, convert.ToWireEvent(ev)); err != nil {
				return
			}
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
