// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"fmt"
)

type LinkState int

const (
	LinkIdle LinkState = iota
	LinkConnecting
	LinkActive
	LinkClosed
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkConnecting:
		return "connecting"
	case LinkActive:
		return "active"
	case LinkClosed:
		return "closed"
	case LinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var linkTransitions = map[LinkState][]LinkState{
	LinkIdle:       {LinkConnecting},
	LinkConnecting: {LinkActive, LinkClosed, LinkFailed},
	LinkActive:     {LinkClosed, LinkFailed},
}

// peerLink is the connection entry held for a remote peer. It's only
// accessed from the session loop.
type peerLink struct {
	peerID string
	linkID string
	link   Link
	state  LinkState
	// stream is the last remote stream attached.
	stream RemoteStream
	// video is the outgoing video track, nil when the peer only gets audio.
	video Track
}

func newPeerLink(peerID, linkID string) *peerLink {
	return &peerLink{
		peerID: peerID,
		linkID: linkID,
		state:  LinkIdle,
	}
}

func (l *peerLink) transition(to LinkState) error {
	for _, s := range linkTransitions[l.state] {
		if s == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
}
