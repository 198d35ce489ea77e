package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bodul/xwedit/engine"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 << 10
)

// GET /api/sessions/{id}/ws upgrades to a websocket. Every text frame is one
// action; the socket receives the same events as the SSE stream, starting
// with a snapshot. Rejected actions produce an error event for this socket
// only.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "session_id", sess.ID, "error", err)
		return
	}

	sub := s.sse.Subscribe(sess.ID)
	replies := make(chan Event, sseChannelBuffer)
	done := make(chan struct{})

	view := sess.View()
	replies <- Event{Type: eventSnapshot, Session: &view}

	go s.socketWriter(conn, sub, replies, done)
	defer func() {
		s.sse.Unsubscribe(sub)
		close(done)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ip := clientIP(r)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed", "session_id", sess.ID, "error", err)
			}
			return
		}
		if !s.actionRL.allow(ip) {
			reply(replies, Event{Type: eventError, Error: "too many requests, try again later"})
			continue
		}
		a, err := engine.DecodeAction(msg)
		if err != nil {
			actionsTotal.WithLabelValues("unknown", "invalid").Inc()
			reply(replies, Event{Type: eventError, Error: err.Error()})
			continue
		}
		if _, err := s.dispatch(sess, a); err != nil {
			reply(replies, Event{Type: eventError, Error: err.Error()})
		}
	}
}

// socketWriter owns all writes to conn.
func (s *Server) socketWriter(conn *websocket.Conn, sub *subscriber, replies <-chan Event, done <-chan struct{}) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case evt := <-replies:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err = conn.WriteJSON(evt)
		case msg, ok := <-sub.ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err = conn.WriteMessage(websocket.TextMessage, msg)
		case <-ping.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
		}
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("websocket write failed", "error", err)
			}
			conn.Close()
			return
		}
	}
}

// reply queues evt for the writer, dropping it if the client is not reading.
func reply(replies chan<- Event, evt Event) {
	select {
	case replies <- evt:
	default:
	}
}
