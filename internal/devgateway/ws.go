package devgateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/gateway"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeFrame is the first frame a push client sends.
type subscribeFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
	Filter string `json:"filter,omitempty"`
}

// subscriber is one connected push client with its topic and filter.
type subscriber struct {
	conn   *websocket.Conn
	topic  string
	filter string
	send   chan []byte
}

// broker fans change events out to subscribed push clients.
type broker struct {
	mu   sync.RWMutex
	subs map[*subscriber]bool
}

func newBroker() *broker {
	return &broker{subs: make(map[*subscriber]bool)}
}

// handleWS upgrades a push connection, reads its subscribe frame and
// pumps matching events until the peer goes away.
func (b *broker) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dev gateway: ws upgrade failed: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	var frame subscribeFrame
	if err := conn.ReadJSON(&frame); err != nil || frame.Action != "subscribe" || frame.Topic == "" {
		conn.Close()
		return
	}

	sub := &subscriber{
		conn:   conn,
		topic:  frame.Topic,
		filter: frame.Filter,
		send:   make(chan []byte, 64),
	}

	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()
	log.Printf("dev gateway: push client subscribed to %s (filter %q)", frame.Topic, frame.Filter)

	go sub.writePump(func() { b.drop(sub) })
	go sub.readPump(func() { b.drop(sub) })
}

func (b *broker) drop(sub *subscriber) {
	b.mu.Lock()
	if b.subs[sub] {
		delete(b.subs, sub)
		close(sub.send)
	}
	b.mu.Unlock()
}

// publish sends a change event to every subscriber whose topic and
// filter match the changed record.
func (b *broker) publish(ev gateway.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("dev gateway: encoding event: %v", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.topic != ev.Collection {
			continue
		}
		if !filterMatches(sub.filter, ev.Record) {
			continue
		}
		select {
		case sub.send <- data:
		default:
			// Slow client; it will catch up via polling.
		}
	}
}

// filterMatches evaluates a "col=eq.value" filter against a record.
// An empty filter matches everything; so does a DELETE tombstone that
// no longer carries the filtered column.
func filterMatches(filter string, record json.RawMessage) bool {
	if filter == "" {
		return true
	}

	col, rest, ok := strings.Cut(filter, "=")
	if !ok || !strings.HasPrefix(rest, "eq.") {
		return true
	}
	want := strings.TrimPrefix(rest, "eq.")

	var doc map[string]any
	if err := json.Unmarshal(record, &doc); err != nil {
		return true
	}
	got, ok := doc[col]
	if !ok {
		return true
	}
	return toString(got) == want
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		data, _ := json.Marshal(t)
		return string(data)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

func (s *subscriber) readPump(onClose func()) {
	defer func() {
		onClose()
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		// Additional frames from clients are ignored.
	}
}

func (s *subscriber) writePump(onClose func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		onClose()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
