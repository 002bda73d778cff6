package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/FoleySim/internal/events"
)

const (
	// Number of recent events to send on connection
	recentEventsCount = 50

	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The instructor console is served from another origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEventStream streams live events to an instructor console. The
// client first receives the most recent events, then everything new.
// ?filter=step.,gate. limits both to matching event names.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	prefixes := parseFilter(r.URL.Query().Get("filter"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	sub := events.Subscribe(prefixes...)
	cleanup := func() {
		events.Unsubscribe(sub)
		conn.Close()
	}

	write := func(e events.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, e := range events.RecentEvents(recentEventsCount, prefixes...) {
		if err := write(e); err != nil {
			s.log.Debug().Err(err).Msg("ws write recent event failed")
			cleanup()
			return
		}
	}

	// Reader handles pongs and close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			cleanup()
			return

		case e, ok := <-sub:
			if !ok {
				// closed by CloseAllSubscribers during shutdown
				conn.Close()
				return
			}
			if err := write(e); err != nil {
				s.log.Debug().Err(err).Msg("ws write event failed")
				cleanup()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cleanup()
				return
			}
		}
	}
}

func parseFilter(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
