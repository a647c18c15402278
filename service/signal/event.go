// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signal

import (
	"github.com/mattermost/meshcall/service/room"
)

// Client to server events.
const (
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventMediaStateChanged = "media-state-changed"
)

// Server to client events.
const (
	EventRoomState           = "room-state"
	EventPeerJoined          = "peer-joined"
	EventParticipantsUpdated = "participants-updated"
	EventPeerLeft            = "peer-left"
	EventPeerMediaUpdated    = "peer-media-updated"
	EventJoinError           = "join-error"
)

// Events flowing in both directions.
const (
	EventActiveSpeaker = "active-speaker"
	EventChat          = "chat-event"
	EventLinkSignal    = "link-signal"
)

type JoinRoom struct {
	RoomID      string `json:"roomId"`
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type MediaStateChanged struct {
	RoomID     string               `json:"roomId"`
	MediaState room.MediaStatePatch `json:"mediaState"`
}

type ActiveSpeaker struct {
	RoomID string `json:"roomId,omitempty"`
	PeerID string `json:"peerId"`
}

type ChatMessage struct {
	RoomID  string `json:"roomId"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ChatEvent struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName"`
	At          int64  `json:"at"`
}

type RoomState struct {
	RoomID          string             `json:"roomId"`
	Mode            room.Mode          `json:"mode"`
	MaxParticipants int                `json:"maxParticipants"`
	Participants    []room.Participant `json:"participants"`
}

type PeerJoined struct {
	Participant room.Participant `json:"participant"`
	Mode        room.Mode        `json:"mode"`
}

type ParticipantsUpdated struct {
	Participants []room.Participant `json:"participants"`
	Mode         room.Mode          `json:"mode"`
}

type PeerLeft struct {
	ConnID string    `json:"socketId"`
	PeerID string    `json:"peerId"`
	Mode   room.Mode `json:"mode"`
}

type PeerMediaUpdated struct {
	ConnID     string          `json:"socketId"`
	PeerID     string          `json:"peerId"`
	MediaState room.MediaState `json:"mediaState"`
}

type JoinError struct {
	Message string `json:"message"`
}

type LinkSignalKind string

const (
	LinkSignalOffer     LinkSignalKind = "offer"
	LinkSignalAnswer    LinkSignalKind = "answer"
	LinkSignalCandidate LinkSignalKind = "candidate"
	LinkSignalClose     LinkSignalKind = "close"
)

func (k LinkSignalKind) IsValid() bool {
	switch k {
	case LinkSignalOffer, LinkSignalAnswer, LinkSignalCandidate, LinkSignalClose:
		return true
	default:
		return false
	}
}

// LinkSignal carries media link negotiation data between two room members.
// Clients set To, the server replaces it with From when relaying.
type LinkSignal struct {
	RoomID    string         `json:"roomId,omitempty"`
	To        string         `json:"to,omitempty"`
	From      string         `json:"from,omitempty"`
	LinkID    string         `json:"linkId"`
	Kind      LinkSignalKind `json:"kind"`
	SDP       string         `json:"sdp,omitempty"`
	Candidate string         `json:"candidate,omitempty"`
}
