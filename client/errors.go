// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"errors"
)

var (
	ErrClosed            = errors.New("session is closed")
	ErrNotJoined         = errors.New("session is not in a room")
	ErrAlreadyJoined     = errors.New("session has already joined")
	ErrInvalidTransition = errors.New("invalid link state transition")
	// ErrUnsupported is returned by media engines lacking an optional
	// capability. Callers treat it as a non error.
	ErrUnsupported   = errors.New("operation not supported")
	ErrScreenSharing = errors.New("operation not allowed while screen sharing")
	ErrNotSharing    = errors.New("screen is not being shared")
	ErrEmptyMessage  = errors.New("empty chat message")
)

// JoinError is returned when the service rejects a join attempt.
type JoinError struct {
	Message string
}

func (e *JoinError) Error() string {
	return "join rejected: " + e.Message
}
