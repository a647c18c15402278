// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mattermost/meshcall/service/random"

	"github.com/gorilla/websocket"
	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const (
	sendChSize    = 256
	receiveChSize = 256
	writeWaitTime = 10 * time.Second
)

var ErrServerClosed = errors.New("ws server is closed")

type Server struct {
	cfg       ServerConfig
	log       mlog.LoggerIFace
	conns     map[string]*conn
	upgradeCb UpgradeCb
	mut       sync.RWMutex
	sendCh    chan Message
	receiveCh chan Message
	closeCh   chan struct{}
	closed    bool
	handlerWg sync.WaitGroup
	writerWg  sync.WaitGroup
}

// NewServer initializes and returns a new WebSocket server.
func NewServer(cfg ServerConfig, log mlog.LoggerIFace, opts ...ServerOption) (*Server, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("invalid log value: should not be nil")
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		conns:     make(map[string]*conn),
		sendCh:    make(chan Message, sendChSize),
		receiveCh: make(chan Message, receiveChSize),
		closeCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	s.writerWg.Add(1)
	go s.connWriter()

	return s, nil
}

// Send queues msg for delivery to the connection identified by msg.ConnID.
func (s *Server) Send(msg Message) error {
	select {
	case <-s.closeCh:
		return ErrServerClosed
	default:
	}

	select {
	case s.sendCh <- msg:
		return nil
	case <-s.closeCh:
		return ErrServerClosed
	}
}

// ReceiveCh returns a channel that should be used to receive messages from the
// server connections. The channel gets closed once the server is closed.
func (s *Server) ReceiveCh() <-chan Message {
	return s.receiveCh
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mut.Lock()
	if s.closed {
		s.mut.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.handlerWg.Add(1)
	s.mut.Unlock()
	defer s.handlerWg.Done()

	connID := random.NewID()

	if s.upgradeCb != nil {
		if err := s.upgradeCb(connID, w, r); err != nil {
			s.log.Error("upgradeCb failed", mlog.String("connID", connID), mlog.Err(err))
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
		CheckOrigin: func(_ *http.Request) bool {
			return true
		},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade connection", mlog.Err(err))
		return
	}
	ws.SetReadLimit(connMaxReadBytes)

	conn := newConn(connID, ws)
	if !s.addConn(conn) {
		s.log.Error("failed to add conn", mlog.String("connID", connID))
		_ = conn.close()
		return
	}
	defer func() {
		s.removeConn(connID)
		close(conn.closeCh)
		if err := conn.close(); err != nil {
			s.log.Debug("failed to close ws conn", mlog.String("connID", connID), mlog.Err(err))
		}
		s.receive(newCloseMessage(connID))
	}()

	if !s.receive(newOpenMessage(connID)) {
		return
	}

	pongWait := 2 * s.cfg.PingInterval
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.pinger(conn)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws conn closed", mlog.String("connID", connID))
			} else {
				s.log.Debug("ws read failed", mlog.String("connID", connID), mlog.Err(err))
			}
			return
		}

		var msgType MessageType
		switch mt {
		case websocket.TextMessage:
			msgType = TextMessage
		case websocket.BinaryMessage:
			msgType = BinaryMessage
		default:
			continue
		}

		if !s.receive(Message{
			ConnID: connID,
			Type:   msgType,
			Data:   data,
		}) {
			return
		}
	}
}

// Close closes all connections and waits for their handlers to return.
// ReceiveCh is closed afterwards.
func (s *Server) Close() {
	s.mut.Lock()
	if s.closed {
		s.mut.Unlock()
		return
	}
	s.closed = true
	close(s.closeCh)
	s.mut.Unlock()

	for _, conn := range s.getConns() {
		if err := conn.close(); err != nil {
			s.log.Error("failed to close ws conn", mlog.String("connID", conn.id), mlog.Err(err))
		}
	}

	s.handlerWg.Wait()
	s.writerWg.Wait()
	close(s.receiveCh)
}

// receive forwards msg to the receiving channel. It returns false if the
// server is closing.
func (s *Server) receive(msg Message) bool {
	select {
	case s.receiveCh <- msg:
		return true
	case <-s.closeCh:
		return false
	}
}

func (s *Server) pinger(c *conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWaitTime)); err != nil {
				s.log.Debug("failed to send ping", mlog.String("connID", c.id), mlog.Err(err))
			}
		case <-c.closeCh:
			return
		}
	}
}

func (s *Server) connWriter() {
	defer s.writerWg.Done()

	for {
		select {
		case msg := <-s.sendCh:
			conn := s.getConn(msg.ConnID)
			if conn == nil {
				s.log.Debug("failed to get conn for sending", mlog.String("connID", msg.ConnID))
				continue
			}

			var msgType int
			switch msg.Type {
			case TextMessage:
				msgType = websocket.TextMessage
			case BinaryMessage:
				msgType = websocket.BinaryMessage
			case CloseMessage:
				_ = conn.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWaitTime))
				continue
			default:
				s.log.Error("unexpected message type", mlog.String("connID", msg.ConnID), mlog.Int("type", int(msg.Type)))
				continue
			}

			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWaitTime))
			if err := conn.ws.WriteMessage(msgType, msg.Data); err != nil {
				s.log.Error("failed to write message", mlog.String("connID", msg.ConnID), mlog.Err(err))
			}
		case <-s.closeCh:
			return
		}
	}
}
