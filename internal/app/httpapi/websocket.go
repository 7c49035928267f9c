package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hireloop/hireloop/internal/app/feed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// feedSocket streams live feed activities over a websocket. Delivery is
// at-most-once; a client that cannot keep up misses activities rather than
// stalling the feed.
func (h *handler) feedSocket(w http.ResponseWriter, r *http.Request) {
	scope := feed.Scope{
		EmployerID:  r.URL.Query().Get("employer_id"),
		CandidateID: r.URL.Query().Get("candidate_id"),
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	activities, unsubscribe := h.app.Feed.Subscribe(scope)
	defer unsubscribe()
	defer conn.Close()

	// Discard client frames but notice the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case activity, ok := <-activities:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(activity); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
