package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const realtimePath = "/realtime/v1"

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// subscribeFrame is the first message sent on a new push channel.
type subscribeFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
	Filter string `json:"filter,omitempty"`
}

// wsSubscription is a live push channel over a websocket connection.
type wsSubscription struct {
	collection string
	conn       *websocket.Conn
	events     chan ChangeEvent

	mu     sync.Mutex
	err    error
	closed bool
}

// Subscribe opens a push channel for row-level changes in collection.
// The returned subscription does not reconnect by itself; the change
// router owns the reconnect-with-backoff loop.
func (c *Client) Subscribe(ctx context.Context, collection, filter string) (Subscription, error) {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, &SubscriptionError{Collection: collection, Err: err}
	}

	header := http.Header{}
	header.Set("apikey", c.key)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, &SubscriptionError{Collection: collection, Err: err}
	}

	frame := subscribeFrame{Action: "subscribe", Topic: collection, Filter: filter}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		conn.Close()
		return nil, &SubscriptionError{Collection: collection, Err: err}
	}

	sub := &wsSubscription{
		collection: collection,
		conn:       conn,
		events:     make(chan ChangeEvent, 64),
	}

	go sub.readPump()
	go sub.pingLoop()

	c.debugLog("DEBUG: subscribed to %s (filter %q)", collection, filter)
	return sub, nil
}

func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + realtimePath
	return u.String(), nil
}

func (s *wsSubscription) Events() <-chan ChangeEvent { return s.events }

func (s *wsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the channel down. Safe to call more than once; the events
// channel is closed exactly once by the read pump.
func (s *wsSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// readPump reads event frames until the connection dies or Close is called.
func (s *wsSubscription) readPump() {
	defer close(s.events)

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = &SubscriptionError{Collection: s.collection, Err: err}
				s.closed = true
				s.conn.Close()
			}
			s.mu.Unlock()
			return
		}

		var ev ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Skip frames we don't understand (acks, heartbeats)
			continue
		}
		if ev.Kind == "" || ev.Collection == "" {
			continue
		}

		select {
		case s.events <- ev:
		default:
			// Consumer is slow; dropping is safe because events only
			// trigger refetches, and polling covers any gap.
		}
	}
}

// pingLoop keeps the connection alive until it is closed.
func (s *wsSubscription) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}
