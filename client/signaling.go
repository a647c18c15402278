// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattermost/meshcall/service/signal"
	"github.com/mattermost/meshcall/service/ws"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const envelopeChSize = 64

// Signaler is the client end of the signaling channel.
type Signaler interface {
	Send(event string, data any) error
	// Receive returns the channel of incoming envelopes. It's closed when
	// the underlying connection drops.
	Receive() <-chan signal.Envelope
	Close() error
}

// SignalClient is a Signaler speaking msgpack over a WebSocket connection.
type SignalClient struct {
	log       mlog.LoggerIFace
	ws        *ws.Client
	envCh     chan signal.Envelope
	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewSignalClient(ctx context.Context, wsURL string, log mlog.LoggerIFace) (*SignalClient, error) {
	if log == nil {
		return nil, fmt.Errorf("invalid log value: should not be nil")
	}

	wsClient, err := ws.NewClient(ctx, ws.ClientConfig{URL: wsURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create ws client: %w", err)
	}

	c := &SignalClient{
		log:     log,
		ws:      wsClient,
		envCh:   make(chan signal.Envelope, envelopeChSize),
		closeCh: make(chan struct{}),
	}

	go c.reader()

	return c, nil
}

func (c *SignalClient) reader() {
	defer close(c.envCh)

	errCh := c.ws.ErrorCh()
	for {
		select {
		case msg, ok := <-c.ws.ReceiveCh():
			if !ok {
				return
			}

			enc := signal.JSONEncoding
			if msg.Type == ws.BinaryMessage {
				enc = signal.MsgpackEncoding
			}

			env, err := signal.Decode(enc, msg.Data)
			if err != nil {
				c.log.Warn("failed to decode signaling message", mlog.Err(err))
				continue
			}

			// Once closed, messages are drained and dropped until the
			// connection goes away.
			select {
			case c.envCh <- env:
			case <-c.closeCh:
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.log.Warn("signaling connection error", mlog.Err(err))
		}
	}
}

func (c *SignalClient) Send(event string, data any) error {
	msg, err := signal.Encode(signal.MsgpackEncoding, event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	if err := c.ws.Send(ws.BinaryMessage, msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

func (c *SignalClient) Receive() <-chan signal.Envelope {
	return c.envCh
}

// Close closes the connection. Envelopes not yet received are discarded.
func (c *SignalClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	return c.ws.Close()
}
