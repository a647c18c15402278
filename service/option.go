// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"time"

	"github.com/mattermost/meshcall/service/room"
)

type Option func(s *Service) error

// WithRoomCodeGenerator lets the caller override how new room codes get
// sampled.
func WithRoomCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) error {
		if fn == nil {
			return fmt.Errorf("invalid code generator: should not be nil")
		}
		s.roomOpts = append(s.roomOpts, room.WithCodeGenerator(fn))
		return nil
	}
}

// WithClock lets the caller override the time source used by the room
// registry.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn == nil {
			return fmt.Errorf("invalid clock: should not be nil")
		}
		s.roomOpts = append(s.roomOpts, room.WithClock(fn))
		return nil
	}
}
