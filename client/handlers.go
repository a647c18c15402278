// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"github.com/mattermost/meshcall/service/room"
	"github.com/mattermost/meshcall/service/signal"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

func (s *Session) handleEnvelope(env signal.Envelope) {
	var err error
	switch env.Event {
	case signal.EventRoomState:
		var msg signal.RoomState
		if err = env.Decode(&msg); err == nil {
			s.handleRoomState(msg)
		}
	case signal.EventPeerJoined:
		var msg signal.PeerJoined
		if err = env.Decode(&msg); err == nil {
			s.handlePeerJoined(msg)
		}
	case signal.EventParticipantsUpdated:
		var msg signal.ParticipantsUpdated
		if err = env.Decode(&msg); err == nil {
			s.handleParticipantsUpdated(msg)
		}
	case signal.EventPeerLeft:
		var msg signal.PeerLeft
		if err = env.Decode(&msg); err == nil {
			s.handlePeerLeft(msg)
		}
	case signal.EventPeerMediaUpdated:
		var msg signal.PeerMediaUpdated
		if err = env.Decode(&msg); err == nil {
			s.handlePeerMediaUpdated(msg)
		}
	case signal.EventActiveSpeaker:
		var msg signal.ActiveSpeaker
		if err = env.Decode(&msg); err == nil {
			s.emit(Event{Type: ActiveSpeakerEvent, PeerID: msg.PeerID})
		}
	case signal.EventChat:
		var msg signal.ChatEvent
		if err = env.Decode(&msg); err == nil {
			s.emit(Event{Type: ChatEvent, PeerID: msg.PeerID, Chat: msg})
		}
	case signal.EventJoinError:
		var msg signal.JoinError
		if err = env.Decode(&msg); err == nil {
			joinErr := &JoinError{Message: msg.Message}
			s.log.Warn("join rejected", mlog.String("message", msg.Message))
			s.failJoin(joinErr)
			s.emit(Event{Type: JoinErrorEvent, Err: joinErr})
		}
	case signal.EventLinkSignal:
		var msg signal.LinkSignal
		if err = env.Decode(&msg); err == nil {
			s.handleLinkSignal(msg)
		}
	default:
		s.log.Debug("unexpected signaling event", mlog.String("event", env.Event))
	}

	if err != nil {
		s.log.Warn("failed to decode signaling message", mlog.String("event", env.Event), mlog.Err(err))
	}
}

// setRoster replaces the known participants. Links to peers that are no
// longer listed are closed.
func (s *Session) setRoster(participants []room.Participant) {
	clear(s.roster)
	for _, p := range participants {
		if p.PeerID == s.cfg.PeerID {
			continue
		}
		s.roster[p.PeerID] = p
	}

	for peerID := range s.entries {
		if _, ok := s.roster[peerID]; !ok {
			s.closeEntry(peerID, LinkClosed)
		}
	}
}

func (s *Session) handleRoomState(msg signal.RoomState) {
	if s.joinCh == nil && !s.joined {
		s.log.Debug("ignoring room state while not joining")
		return
	}

	s.roomID = msg.RoomID
	s.joined = true
	s.mode = msg.Mode
	s.setRoster(msg.Participants)

	s.log.Debug("joined room",
		mlog.String("roomID", s.roomID),
		mlog.String("mode", string(s.mode)),
		mlog.Int("participants", len(msg.Participants)),
	)

	s.failJoin(nil)
	s.emit(Event{Type: RoomStateEvent, Mode: msg.Mode, Participants: msg.Participants})

	if s.media != room.DefaultMediaState() {
		s.emitMediaState()
	}

	for peerID := range s.roster {
		s.connect(peerID)
	}
}

func (s *Session) handlePeerJoined(msg signal.PeerJoined) {
	if !s.joined || msg.Participant.PeerID == s.cfg.PeerID {
		return
	}
	s.roster[msg.Participant.PeerID] = msg.Participant
	s.mode = msg.Mode
	s.emit(Event{Type: PeerJoinedEvent, Mode: msg.Mode, Participant: msg.Participant, PeerID: msg.Participant.PeerID})
	s.connect(msg.Participant.PeerID)
	s.applyPolicy()
}

func (s *Session) handleParticipantsUpdated(msg signal.ParticipantsUpdated) {
	if !s.joined {
		return
	}
	s.mode = msg.Mode
	s.setRoster(msg.Participants)
	s.emit(Event{Type: ParticipantsUpdatedEvent, Mode: msg.Mode, Participants: msg.Participants})
	s.applyPolicy()
}

func (s *Session) handlePeerLeft(msg signal.PeerLeft) {
	if !s.joined {
		return
	}
	s.mode = msg.Mode
	participant := s.roster[msg.PeerID]
	delete(s.roster, msg.PeerID)
	s.reconnect.reset(msg.PeerID)
	if _, ok := s.entries[msg.PeerID]; ok {
		s.closeEntry(msg.PeerID, LinkClosed)
	}
	s.emit(Event{Type: PeerLeftEvent, Mode: msg.Mode, Participant: participant, PeerID: msg.PeerID})
	s.applyPolicy()
}

func (s *Session) handlePeerMediaUpdated(msg signal.PeerMediaUpdated) {
	p, ok := s.roster[msg.PeerID]
	if !ok {
		return
	}
	p.MediaState = msg.MediaState
	s.roster[msg.PeerID] = p
	s.emit(Event{Type: PeerMediaUpdatedEvent, Participant: p, PeerID: msg.PeerID})
}

func (s *Session) handleSpeakerSample(sample speakerSample) {
	entry, ok := s.entries[sample.peerID]
	if !ok || entry.linkID != sample.linkID || !s.joined {
		return
	}
	s.send(signal.EventActiveSpeaker, signal.ActiveSpeaker{
		RoomID: s.roomID,
		PeerID: sample.peerID,
	})
}
