// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"net/http"
)

type ServerOption func(s *Server) error

// UpgradeCb is called prior to performing the websocket upgrade. Returning an
// error aborts the upgrade; the callback is then responsible for writing the
// HTTP response.
type UpgradeCb func(connID string, w http.ResponseWriter, r *http.Request) error

// WithUpgradeCb lets the caller set an optional callback to be called prior to
// performing the websocket upgrade.
func WithUpgradeCb(cb UpgradeCb) ServerOption {
	return func(s *Server) error {
		s.upgradeCb = cb
		return nil
	}
}
