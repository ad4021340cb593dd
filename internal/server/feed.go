package server

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"servicetracker/internal/models"
	"servicetracker/internal/tracker"
)

const (
	feedWriteTimeout = 5 * time.Second
	feedBuffer       = 16
)

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// feedSnapshot is pushed to websocket clients.
type feedSnapshot struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Services    []models.ServiceRecord `json:"services"`
	Summary     summaryResponse        `json:"summary"`
	Notice      string                 `json:"notice,omitempty"`
	Event       *tracker.Event         `json:"event,omitempty"`
}

// feed fans tracker events out to connected websocket clients.
type feed struct {
	mu     sync.Mutex
	subs   map[chan tracker.Event]struct{}
	closed bool
}

func newFeed() *feed {
	return &feed{subs: make(map[chan tracker.Event]struct{})}
}

func (f *feed) subscribe() chan tracker.Event {
	ch := make(chan tracker.Event, feedBuffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.subs[ch] = struct{}{}
	return ch
}

func (f *feed) unsubscribe(ch chan tracker.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}

// publish never blocks; slow clients drop events and catch up on the next tick.
func (f *feed) publish(ev tracker.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveFeedConnection(conn)
}

func (s *Server) serveFeedConnection(conn *websocket.Conn) {
	defer conn.Close()

	events := s.feed.subscribe()
	defer s.feed.unsubscribe(events)

	if err := writeFeedPayload(conn, s.buildSnapshot(nil)); err != nil {
		return
	}

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeFeedPayload(conn, s.buildSnapshot(&ev)); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeFeedPayload(conn, s.buildSnapshot(nil)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) buildSnapshot(ev *tracker.Event) feedSnapshot {
	snap := feedSnapshot{
		GeneratedAt: time.Now().UTC(),
		Services:    s.log.Services(),
		Summary:     s.summary(),
		Event:       ev,
	}
	if ev != nil {
		snap.Notice = ev.Message
	}
	return snap
}

func writeFeedPayload(conn *websocket.Conn, payload feedSnapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return conn.WriteJSON(payload)
}
