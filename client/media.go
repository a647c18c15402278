// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"context"

	"github.com/mattermost/meshcall/service/signal"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Track is a locally captured media track. The enabled flag is shared by
// every link sending the track.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
}

// LocalStream is what gets sent over a link. Either track can be nil.
type LocalStream struct {
	Audio Track
	Video Track
}

// AudioOnly returns a copy of the stream without its video track.
func (s LocalStream) AudioOnly() LocalStream {
	return LocalStream{Audio: s.Audio}
}

// RemoteStream is the media received from a remote peer.
type RemoteStream interface {
	HasAudio() bool
	// AudioLevel returns the average audio level on a 0 to 255 scale since the
	// previous call.
	AudioLevel() float64
}

type LinkEventType int

const (
	LinkEventConnected LinkEventType = iota + 1
	LinkEventClosed
	LinkEventFailed
	// LinkEventSignal carries negotiation data to relay to the remote peer.
	LinkEventSignal
)

func (t LinkEventType) String() string {
	switch t {
	case LinkEventConnected:
		return "connected"
	case LinkEventClosed:
		return "closed"
	case LinkEventFailed:
		return "failed"
	case LinkEventSignal:
		return "signal"
	default:
		return "unknown"
	}
}

type LinkEvent struct {
	Type   LinkEventType
	PeerID string
	LinkID string
	// Stream is set on LinkEventConnected.
	Stream RemoteStream
	// Signal is set on LinkEventSignal. Routing fields are filled in by the
	// session.
	Signal signal.LinkSignal
	// Err is set on LinkEventFailed.
	Err error
}

// MediaEngine creates media links to remote peers. Events for every link it
// creates are delivered, in order, on the Events channel.
type MediaEngine interface {
	// Dial creates an outgoing link sending stream.
	Dial(ctx context.Context, peerID, linkID string, stream LocalStream) (Link, error)
	// Answer accepts an incoming link from its offer, sending stream.
	Answer(ctx context.Context, peerID, linkID, offer string, stream LocalStream) (Link, error)
	Events() <-chan LinkEvent
	Close() error
}

type Link interface {
	ID() string
	PeerID() string
	// HandleSignal applies an answer or candidate received from the remote
	// peer.
	HandleSignal(sig signal.LinkSignal) error
	// ReplaceVideoTrack swaps the outgoing video track without renegotiating.
	// A nil track stops sending video.
	ReplaceVideoTrack(track Track) error
	// PreferVideoCodec moves the codec matching mimeType first in the
	// negotiated preferences. It may return ErrUnsupported.
	PreferVideoCodec(mimeType string) error
	Close() error
}
