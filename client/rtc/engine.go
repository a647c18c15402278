// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mattermost/meshcall/client"
	"github.com/mattermost/meshcall/client/e2ee"
	"github.com/mattermost/meshcall/service/perf"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/pion/webrtc/v4"
)

const eventChSize = 256

var ErrEngineClosed = errors.New("engine is closed")

// Engine creates WebRTC peer connections. Each link gets its own API
// instance since interceptors are bound to the link cipher.
type Engine struct {
	cfg     Config
	log     mlog.LoggerIFace
	cipher  *e2ee.Worker
	metrics *perf.Metrics

	eventCh chan client.LinkEvent
	closeCh chan struct{}

	mut    sync.Mutex
	links  map[string]*Link
	closed bool
}

type Option func(e *Engine) error

// WithCipher makes links transform their media frames through w.
func WithCipher(w *e2ee.Worker) Option {
	return func(e *Engine) error {
		if w == nil {
			return fmt.Errorf("invalid cipher value: should not be nil")
		}
		e.cipher = w
		return nil
	}
}

func WithMetrics(m *perf.Metrics) Option {
	return func(e *Engine) error {
		if m == nil {
			return fmt.Errorf("invalid metrics value: should not be nil")
		}
		e.metrics = m
		return nil
	}
}

func NewEngine(cfg Config, log mlog.LoggerIFace, opts ...Option) (*Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("invalid log value: should not be nil")
	}

	cfg.SetDefaults()
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		log:     log,
		eventCh: make(chan client.LinkEvent, eventChSize),
		closeCh: make(chan struct{}),
		links:   make(map[string]*Link),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func (e *Engine) Events() <-chan client.LinkEvent {
	return e.eventCh
}

func (e *Engine) Dial(ctx context.Context, peerID, linkID string, stream client.LocalStream) (client.Link, error) {
	l, err := e.newLink(peerID, linkID, stream)
	if err != nil {
		return nil, err
	}

	if err := l.offer(ctx); err != nil {
		l.Close()
		return nil, err
	}

	return l, nil
}

func (e *Engine) Answer(ctx context.Context, peerID, linkID, offer string, stream client.LocalStream) (client.Link, error) {
	l, err := e.newLink(peerID, linkID, stream)
	if err != nil {
		return nil, err
	}

	if err := l.answer(ctx, offer); err != nil {
		l.Close()
		return nil, err
	}

	return l, nil
}

func (e *Engine) newLink(peerID, linkID string, stream client.LocalStream) (*Link, error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if _, ok := e.links[linkID]; ok {
		return nil, fmt.Errorf("link %q already exists", linkID)
	}

	frames := &frameFactory{metrics: e.metrics}
	if lt, ok := stream.Audio.(*LocalTrack); ok {
		frames.audio = lt
	}
	if e.cipher != nil {
		enc, err := e.cipher.Attach(linkID, e2ee.Encode)
		if err != nil {
			return nil, fmt.Errorf("failed to attach encoder: %w", err)
		}
		dec, err := e.cipher.Attach(linkID, e2ee.Decode)
		if err != nil {
			return nil, fmt.Errorf("failed to attach decoder: %w", err)
		}
		frames.encoder = enc
		frames.decoder = dec
	}

	m, err := initMediaEngine()
	if err != nil {
		return nil, err
	}
	i, err := initInterceptors(m, e.cfg, frames)
	if err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(e.initSettingEngine()),
	)

	l, err := newLink(e, api, peerID, linkID, stream)
	if err != nil {
		e.detachCipher(linkID)
		return nil, err
	}
	e.links[linkID] = l

	return l, nil
}

func (e *Engine) removeLink(linkID string) {
	e.mut.Lock()
	delete(e.links, linkID)
	e.mut.Unlock()
	e.detachCipher(linkID)
}

func (e *Engine) detachCipher(linkID string) {
	if e.cipher == nil {
		return
	}
	if err := e.cipher.Detach(linkID); err != nil && !errors.Is(err, e2ee.ErrWorkerClosed) {
		e.log.Warn("failed to detach cipher", mlog.String("linkID", linkID), mlog.Err(err))
	}
}

func (e *Engine) Close() error {
	e.mut.Lock()
	if e.closed {
		e.mut.Unlock()
		return nil
	}
	e.closed = true
	close(e.closeCh)
	links := make([]*Link, 0, len(e.links))
	for _, l := range e.links {
		links = append(links, l)
	}
	e.mut.Unlock()

	for _, l := range links {
		if err := l.Close(); err != nil {
			e.log.Warn("failed to close link", mlog.String("linkID", l.ID()), mlog.Err(err))
		}
	}

	return nil
}
