// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mattermost/meshcall/service/random"
	"github.com/mattermost/meshcall/service/room"
)

const (
	wsAPIPath    = "/ws"
	roomsAPIPath = "/api/rooms"
)

type Config struct {
	// SiteURL is the URL of the meshcall service to connect to.
	SiteURL string
	// RoomID is the code of the room to join. It's normalized on parse.
	RoomID string
	// PeerID is the stable id other members use to address media links to
	// this client. A random one is generated if empty.
	PeerID string
	// DisplayName is the name shown to other room members.
	DisplayName string
	// ICEServers holds the STUN/TURN URLs handed to the media engine.
	ICEServers []string

	wsURL  string
	apiURL string
}

func parseSiteURL(siteURL string) (*url.URL, error) {
	if siteURL == "" {
		return nil, fmt.Errorf("invalid SiteURL value: should not be empty")
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SiteURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid SiteURL scheme %q", u.Scheme)
	}
	return u, nil
}

func (c *Config) Parse() error {
	c.SiteURL = strings.TrimRight(strings.TrimSpace(c.SiteURL), "/")
	u, err := parseSiteURL(c.SiteURL)
	if err != nil {
		return err
	}

	c.apiURL = u.String() + roomsAPIPath

	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else {
		u.Scheme = "wss"
	}
	u.Path += wsAPIPath
	c.wsURL = u.String()

	c.RoomID = room.NormalizeCode(c.RoomID)
	if c.RoomID == "" {
		return fmt.Errorf("invalid RoomID value: should not be empty")
	}

	c.PeerID = strings.TrimSpace(c.PeerID)
	if c.PeerID == "" {
		c.PeerID = random.NewID()
	}

	c.DisplayName = room.SanitizeName(c.DisplayName)

	return nil
}

// WSURL returns the signaling endpoint derived from SiteURL. It's only set
// after a successful call to Parse.
func (c *Config) WSURL() string {
	return c.wsURL
}
