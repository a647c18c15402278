// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package e2ee

import (
	"context"
	"crypto/cipher"
	"sync/atomic"
)

type Direction int

const (
	Encode Direction = iota + 1
	Decode
)

func (d Direction) String() string {
	switch d {
	case Encode:
		return "encode"
	case Decode:
		return "decode"
	default:
		return "unknown"
	}
}

// state is an immutable cipher configuration. The counter belongs to the
// state so that a new configuration starts counting from zero.
type state struct {
	aead    cipher.AEAD
	enabled bool
	counter atomic.Uint32
}

func (s *state) active() bool {
	return s != nil && s.enabled && s.aead != nil
}

// Transform encrypts or decrypts the frames of a single (link, direction)
// stream. Process is safe for concurrent use but frames only keep their
// counter order when processed sequentially.
type Transform struct {
	linkID string
	dir    Direction
	st     atomic.Pointer[state]
}

func newTransform(linkID string, dir Direction, st *state) *Transform {
	t := &Transform{
		linkID: linkID,
		dir:    dir,
	}
	t.st.Store(st)
	return t
}

func (t *Transform) LinkID() string {
	return t.linkID
}

func (t *Transform) Direction() Direction {
	return t.dir
}

// Enabled reports whether frames are currently being transformed rather
// than passed through.
func (t *Transform) Enabled() bool {
	return t.st.Load().active()
}

// Process transforms a single frame. It returns false if the frame should be
// dropped.
func (t *Transform) Process(frame []byte) ([]byte, bool) {
	st := t.st.Load()
	if !st.active() {
		return frame, true
	}

	if t.dir == Encode {
		return sealFrame(st.aead, st.counter.Add(1)-1, frame), true
	}

	return openFrame(st.aead, frame)
}

// Run processes every frame received on in, in order, and forwards the
// results on out. Dropped frames are skipped. Run returns when in is closed
// or ctx is done.
func (t *Transform) Run(ctx context.Context, in <-chan []byte, out chan<- []byte) error {
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			res, ok := t.Process(frame)
			if !ok {
				continue
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
