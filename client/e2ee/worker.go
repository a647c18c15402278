// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package e2ee

import (
	"errors"
	"sync"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

var ErrWorkerClosed = errors.New("worker is closed")

type transformKey struct {
	linkID string
	dir    Direction
}

// Worker owns the cipher configuration shared by every link and the
// transforms handed out for them. All bookkeeping happens on a single
// goroutine, transforms only ever observe immutable snapshots.
type Worker struct {
	log mlog.LoggerIFace

	reqCh   chan func()
	closeCh chan struct{}
	doneCh  chan struct{}
	once    sync.Once

	// Only accessed from the worker goroutine.
	transforms map[transformKey]*Transform
	key        []byte
	enabled    bool
}

func NewWorker(log mlog.LoggerIFace) *Worker {
	w := &Worker{
		log:        log,
		reqCh:      make(chan func()),
		closeCh:    make(chan struct{}),
		doneCh:     make(chan struct{}),
		transforms: make(map[transformKey]*Transform),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case fn := <-w.reqCh:
			fn()
		case <-w.closeCh:
			return
		}
	}
}

func (w *Worker) do(fn func()) error {
	done := make(chan struct{})
	select {
	case w.reqCh <- func() { fn(); close(done) }:
	case <-w.closeCh:
		return ErrWorkerClosed
	}
	<-done
	return nil
}

// newState builds a snapshot of the current configuration. Must be called
// from the worker goroutine.
func (w *Worker) newState() (*state, error) {
	st := &state{enabled: w.enabled}
	if len(w.key) == 0 {
		return st, nil
	}
	aead, err := newAEAD(w.key)
	if err != nil {
		return nil, err
	}
	st.aead = aead
	return st, nil
}

// Attach returns the transform for the given link and direction, creating
// it if needed.
func (w *Worker) Attach(linkID string, dir Direction) (*Transform, error) {
	var t *Transform
	var err error
	if doErr := w.do(func() {
		k := transformKey{linkID, dir}
		if existing, ok := w.transforms[k]; ok {
			t = existing
			return
		}
		var st *state
		st, err = w.newState()
		if err != nil {
			return
		}
		t = newTransform(linkID, dir, st)
		w.transforms[k] = t
	}); doErr != nil {
		return nil, doErr
	}
	return t, err
}

// Detach forgets both transforms of the given link.
func (w *Worker) Detach(linkID string) error {
	return w.do(func() {
		delete(w.transforms, transformKey{linkID, Encode})
		delete(w.transforms, transformKey{linkID, Decode})
	})
}

// Configure sets the key and enabled flag and pushes them to every attached
// transform, resetting their frame counters. A nil key keeps the current
// one.
func (w *Worker) Configure(key []byte, enabled bool) error {
	if key != nil && len(key) != KeySize {
		return ErrInvalidKey
	}

	var err error
	if doErr := w.do(func() {
		if key != nil {
			w.key = append([]byte(nil), key...)
		}
		w.enabled = enabled

		for k, t := range w.transforms {
			var st *state
			st, err = w.newState()
			if err != nil {
				return
			}
			t.st.Store(st)
			w.log.Debug("e2ee: transform configured",
				mlog.String("linkID", k.linkID),
				mlog.String("direction", k.dir.String()),
				mlog.Bool("enabled", enabled),
			)
		}
	}); doErr != nil {
		return doErr
	}

	return err
}

// Fingerprint returns the fingerprint of the active key, or NoFingerprint
// when encryption is off.
func (w *Worker) Fingerprint() string {
	fp := NoFingerprint
	_ = w.do(func() {
		if w.enabled {
			fp = Fingerprint(w.key)
		}
	})
	return fp
}

func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.closeCh)
	})
	<-w.doneCh
}
