package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second
)

// Event types pushed to session subscribers.
const (
	eventSnapshot = "snapshot"
	eventAction   = "action"
	eventError    = "error"
)

// Event is one message on a session stream.
type Event struct {
	Type    string          `json:"type"`
	Action  json.RawMessage `json:"action,omitempty"`
	Session *SessionView    `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// subscriber is a single SSE or websocket listener.
type subscriber struct {
	ch        chan []byte
	sessionID string
}

// Broadcaster fans session events out to their subscribers. Slow
// subscribers drop events rather than block the publisher.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a listener for a session.
func (b *Broadcaster) Subscribe(sessionID string) *subscriber {
	sub := &subscriber{
		ch:        make(chan []byte, sseChannelBuffer),
		sessionID: sessionID,
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a listener and closes its channel. It is safe to call
// more than once.
func (b *Broadcaster) Unsubscribe(sub *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish sends evt to every subscriber of sessionID.
func (b *Broadcaster) Publish(sessionID string, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("encode event", "session_id", sessionID, "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.sessionID != sessionID {
			continue
		}
		select {
		case sub.ch <- data:
		default:
		}
	}
}

// SubscriberCount returns the number of listeners on a session.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for sub := range b.subs {
		if sub.sessionID == sessionID {
			n++
		}
	}
	return n
}

// ServeSSE streams a session's events until the client goes away. first is
// sent before any published event.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, sessionID string, first Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := b.Subscribe(sessionID)
	defer b.Unsubscribe(sub)

	if data, err := json.Marshal(first); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
