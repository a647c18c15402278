// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"time"
)

const (
	maxReconnectAttempts = 2
	reconnectBackoff     = 1200 * time.Millisecond
)

// AfterFunc runs fn in its own goroutine once d has elapsed.
type AfterFunc func(d time.Duration, fn func())

func timeAfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

type reconnectState struct {
	attempts map[string]int
}

func newReconnectState() *reconnectState {
	return &reconnectState{
		attempts: make(map[string]int),
	}
}

// next records a new attempt for peerID and returns the delay before it
// should be made. It returns false once the attempts are exhausted.
func (r *reconnectState) next(peerID string) (time.Duration, bool) {
	n := r.attempts[peerID]
	if n >= maxReconnectAttempts {
		return 0, false
	}
	n++
	r.attempts[peerID] = n
	return time.Duration(n) * reconnectBackoff, true
}

func (r *reconnectState) reset(peerID string) {
	delete(r.attempts, peerID)
}

func (r *reconnectState) clear() {
	clear(r.attempts)
}
