// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mattermost/meshcall/service/room"
	"github.com/mattermost/meshcall/service/signal"
	"github.com/mattermost/meshcall/service/ws"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"golang.org/x/time/rate"
)

const (
	joinErrInvalidInputMsg = "Invalid room or peer id."
	joinErrRoomFullMsg     = "Room is full (8 participants max)."
	chatDefaultType        = "message"
	chatMaxMessageLength   = 2000
)

type connState struct {
	enc     signal.Encoding
	limiter *rate.Limiter
}

func (s *Service) wsUpgradeHandler(connID string, _ http.ResponseWriter, r *http.Request) error {
	s.log.Debug("ws: upgrading connection", mlog.String("connID", connID), mlog.String("remoteAddr", r.RemoteAddr))
	return nil
}

func (s *Service) handleMessage(msg ws.Message) {
	switch msg.Type {
	case ws.OpenMessage:
		s.log.Debug("connection opened", mlog.String("connID", msg.ConnID))
		s.conns[msg.ConnID] = &connState{
			enc:     signal.JSONEncoding,
			limiter: rate.NewLimiter(rate.Limit(s.cfg.Signaling.MessageRateLimit), s.cfg.Signaling.MessageBurst),
		}
		s.metrics.IncWSConnections()
		return
	case ws.CloseMessage:
		s.log.Debug("connection closed", mlog.String("connID", msg.ConnID))
		if _, ok := s.conns[msg.ConnID]; ok {
			s.leave(msg.ConnID)
			delete(s.conns, msg.ConnID)
			s.metrics.DecWSConnections()
		}
		return
	}

	st, ok := s.conns[msg.ConnID]
	if !ok {
		s.log.Debug("message from unknown connection", mlog.String("connID", msg.ConnID))
		return
	}

	s.metrics.IncWSMessages(msg.Type.String(), "in")

	if !st.limiter.Allow() {
		s.metrics.IncRateLimited()
		s.log.Debug("dropping rate limited message", mlog.String("connID", msg.ConnID))
		return
	}

	enc := signal.JSONEncoding
	if msg.Type == ws.BinaryMessage {
		enc = signal.MsgpackEncoding
	}
	st.enc = enc

	env, err := signal.Decode(enc, msg.Data)
	if err != nil {
		s.log.Debug("failed to decode message", mlog.String("connID", msg.ConnID), mlog.Err(err))
		return
	}

	s.metrics.IncSignalingEvent(env.Event, "in")

	switch env.Event {
	case signal.EventJoinRoom:
		s.handleJoin(msg.ConnID, env)
	case signal.EventLeaveRoom:
		s.handleLeave(msg.ConnID, env)
	case signal.EventMediaStateChanged:
		s.handleMediaState(msg.ConnID, env)
	case signal.EventActiveSpeaker:
		s.handleActiveSpeaker(msg.ConnID, env)
	case signal.EventChat:
		s.handleChat(msg.ConnID, env)
	case signal.EventLinkSignal:
		s.handleLinkSignal(msg.ConnID, env)
	default:
		s.log.Debug("unexpected event", mlog.String("connID", msg.ConnID), mlog.String("event", env.Event))
	}
}

func (s *Service) handleJoin(connID string, env signal.Envelope) {
	var data signal.JoinRoom
	if err := env.Decode(&data); err != nil {
		s.log.Debug("failed to decode join-room", mlog.String("connID", connID), mlog.Err(err))
		s.sendJoinError(connID, room.ErrInvalidInput)
		return
	}

	res, err := s.registry.Join(connID, data.RoomID, data.PeerID, data.DisplayName)
	if err != nil {
		s.sendJoinError(connID, err)
		return
	}

	if res.Left != nil {
		s.broadcastLeave(connID, *res.Left)
	}

	s.log.Debug("participant joined",
		mlog.String("connID", connID),
		mlog.String("roomID", res.Room.Code),
		mlog.String("peerID", res.Participant.PeerID),
		mlog.Int("participants", len(res.Members)),
	)

	s.send(connID, signal.EventRoomState, signal.RoomState{
		RoomID:          res.Room.Code,
		Mode:            res.Room.Mode,
		MaxParticipants: room.Capacity,
		Participants:    res.Room.Participants,
	})
	s.broadcast(res.Others, signal.EventPeerJoined, signal.PeerJoined{
		Participant: res.Participant,
		Mode:        res.Room.Mode,
	})
	s.broadcast(res.Members, signal.EventParticipantsUpdated, signal.ParticipantsUpdated{
		Participants: res.Room.Participants,
		Mode:         res.Room.Mode,
	})

	s.updateRoomStats()
}

func (s *Service) sendJoinError(connID string, err error) {
	msg := joinErrInvalidInputMsg
	reason := "invalid_input"
	if errors.Is(err, room.ErrRoomFull) {
		msg = joinErrRoomFullMsg
		reason = "room_full"
	}
	s.metrics.IncJoinErrors(reason)
	s.log.Debug("join rejected", mlog.String("connID", connID), mlog.Err(err))
	s.send(connID, signal.EventJoinError, signal.JoinError{Message: msg})
}

func (s *Service) handleLeave(connID string, env signal.Envelope) {
	var data signal.LeaveRoom
	if err := env.Decode(&data); err != nil {
		s.log.Debug("failed to decode leave-room", mlog.String("connID", connID), mlog.Err(err))
		return
	}

	if data.RoomID != "" {
		info, ok := s.registry.Member(connID)
		if !ok || info.Code != room.NormalizeCode(data.RoomID) {
			return
		}
	}

	s.leave(connID)
}

func (s *Service) leave(connID string) {
	res, ok := s.registry.Leave(connID)
	if !ok {
		return
	}
	s.broadcastLeave(connID, res)
	s.updateRoomStats()
}

func (s *Service) broadcastLeave(connID string, res room.LeaveResult) {
	s.log.Debug("participant left",
		mlog.String("connID", connID),
		mlog.String("roomID", res.Room.Code),
		mlog.String("peerID", res.Participant.PeerID),
		mlog.Bool("deleted", res.Deleted),
	)

	s.broadcast(res.Remaining, signal.EventPeerLeft, signal.PeerLeft{
		ConnID: connID,
		PeerID: res.Participant.PeerID,
		Mode:   res.Room.Mode,
	})
	s.broadcast(res.Remaining, signal.EventParticipantsUpdated, signal.ParticipantsUpdated{
		Participants: res.Room.Participants,
		Mode:         res.Room.Mode,
	})
}

func (s *Service) handleMediaState(connID string, env signal.Envelope) {
	var data signal.MediaStateChanged
	if err := env.Decode(&data); err != nil {
		s.log.Debug("failed to decode media-state-changed", mlog.String("connID", connID), mlog.Err(err))
		return
	}

	info, ok := s.registry.UpdateMediaState(connID, data.MediaState)
	if !ok {
		return
	}

	s.broadcast(info.Others, signal.EventPeerMediaUpdated, signal.PeerMediaUpdated{
		ConnID:     connID,
		PeerID:     info.Participant.PeerID,
		MediaState: info.Participant.MediaState,
	})
}

// handleActiveSpeaker relays the notification as is. The peer id is not
// checked against the sender.
func (s *Service) handleActiveSpeaker(connID string, env signal.Envelope) {
	var data signal.ActiveSpeaker
	if err := env.Decode(&data); err != nil {
		s.log.Debug("failed to decode active-speaker", mlog.String("connID", connID), mlog.Err(err))
		return
	}

	members, ok := s.registry.RoomMembers(data.RoomID)
	if !ok {
		return
	}

	s.broadcast(except(members, connID), signal.EventActiveSpeaker, signal.ActiveSpeaker{
		PeerID: data.PeerID,
	})
}

func (s *Service) handleChat(connID string, env signal.Envelope) {
	var data signal.ChatMessage
	if err := env.Decode(&data); err != nil {
		s.log.Debug("failed to decode chat-event", mlog.String("connID", connID), mlog.Err(err))
		return
	}

	info, ok := s.registry.Member(connID)
	if !ok || info.Code != room.NormalizeCode(data.RoomID) {
		return
	}

	msg := strings.TrimSpace(data.Message)
	if msg == "" {
		return
	}
	if r := []rune(msg); len(r) > chatMaxMessageLength {
		msg = string(r[:chatMaxMessageLength])
	}

	typ := data.Type
	if typ == "" {
		typ = chatDefaultType
	}

	s.broadcast(info.Others, signal.EventChat, signal.ChatEvent{
		Type:        typ,
		Message:     msg,
		PeerID:      info.Participant.PeerID,
		DisplayName: info.Participant.DisplayName,
		At:          time.Now().UnixMilli(),
	})
}

func (s *Service) handleLinkSignal(connID string, env signal.Envelope) {
	var data signal.LinkSignal
	if err := env.Decode(&data); err != nil {
		s.log.Debug("failed to decode link-signal", mlog.String("connID", connID), mlog.Err(err))
		return
	}

	if !data.Kind.IsValid() || data.LinkID == "" {
		s.log.Debug("invalid link-signal", mlog.String("connID", connID), mlog.String("kind", string(data.Kind)))
		return
	}

	info, ok := s.registry.Member(connID)
	if !ok || info.Code != room.NormalizeCode(data.RoomID) {
		return
	}

	target, ok := s.registry.PeerConn(info.Code, data.To)
	if !ok || target == connID {
		s.log.Debug("link-signal target not found",
			mlog.String("connID", connID),
			mlog.String("roomID", info.Code),
			mlog.String("to", data.To),
		)
		return
	}

	s.send(target, signal.EventLinkSignal, signal.LinkSignal{
		From:      info.Participant.PeerID,
		LinkID:    data.LinkID,
		Kind:      data.Kind,
		SDP:       data.SDP,
		Candidate: data.Candidate,
	})
}

func (s *Service) broadcast(connIDs []string, event string, data any) {
	for _, connID := range connIDs {
		s.send(connID, event, data)
	}
}

// send delivers an event to connID using the encoding the connection last
// used.
func (s *Service) send(connID, event string, data any) {
	enc := signal.JSONEncoding
	if st, ok := s.conns[connID]; ok {
		enc = st.enc
	}

	payload, err := signal.Encode(enc, event, data)
	if err != nil {
		s.log.Error("failed to encode message", mlog.String("event", event), mlog.Err(err))
		return
	}

	msgType := ws.TextMessage
	if enc == signal.MsgpackEncoding {
		msgType = ws.BinaryMessage
	}

	if err := s.wsServer.Send(ws.Message{
		ConnID: connID,
		Type:   msgType,
		Data:   payload,
	}); err != nil {
		s.log.Debug("failed to send message", mlog.String("connID", connID), mlog.Err(err))
		return
	}

	s.metrics.IncWSMessages(msgType.String(), "out")
	s.metrics.IncSignalingEvent(event, "out")
}

func except(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
