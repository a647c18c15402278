// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"github.com/mattermost/meshcall/service/room"
	"github.com/mattermost/meshcall/service/signal"
)

type EventType string

const (
	RoomStateEvent           EventType = "RoomState"
	PeerJoinedEvent          EventType = "PeerJoined"
	PeerLeftEvent            EventType = "PeerLeft"
	ParticipantsUpdatedEvent EventType = "ParticipantsUpdated"
	PeerMediaUpdatedEvent    EventType = "PeerMediaUpdated"
	ActiveSpeakerEvent       EventType = "ActiveSpeaker"
	ChatEvent                EventType = "Chat"
	JoinErrorEvent           EventType = "JoinError"
	LinkStateEvent           EventType = "LinkState"
	DisconnectEvent          EventType = "Disconnect"
)

// Event is emitted by a Session. Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	Mode         room.Mode
	Participants []room.Participant
	Participant  room.Participant

	// PeerID identifies the remote peer the event is about.
	PeerID    string
	LinkState LinkState
	Chat      signal.ChatEvent
	Err       error
}
