// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"fmt"
	"time"

	"github.com/mattermost/meshcall/client/e2ee"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

type Option func(s *Session) error

func WithLogger(log mlog.LoggerIFace) Option {
	return func(s *Session) error {
		if log == nil {
			return fmt.Errorf("invalid log value: should not be nil")
		}
		s.log = log
		return nil
	}
}

// WithAfterFunc overrides the timer factory used to schedule reconnects.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Session) error {
		if fn == nil {
			return fmt.Errorf("invalid AfterFunc value: should not be nil")
		}
		s.afterFunc = fn
		return nil
	}
}

func WithSpeakerInterval(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("invalid speaker interval value: should be positive")
		}
		s.speakerInterval = d
		return nil
	}
}

// WithCipher sets the frame cipher worker the media engine was built with.
// Encryption can't be enabled without one.
func WithCipher(w *e2ee.Worker) Option {
	return func(s *Session) error {
		if w == nil {
			return fmt.Errorf("invalid cipher value: should not be nil")
		}
		s.cipher = w
		return nil
	}
}
