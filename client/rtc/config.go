// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"fmt"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

const (
	defaultNACKBufferSize = 256
	receiveMTU            = 1460
)

type ICEServerConfig struct {
	URLs       []string `toml:"urls" json:"urls"`
	Username   string   `toml:"username,omitempty" json:"username,omitempty"`
	Credential string   `toml:"credential,omitempty" json:"credential,omitempty"`
}

func (c ICEServerConfig) IsValid() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("invalid empty URLs")
	}
	for _, u := range c.URLs {
		if u == "" {
			return fmt.Errorf("invalid empty URL")
		}
		uri, err := stun.ParseURI(u)
		if err != nil {
			return fmt.Errorf("URL is not a valid STUN/TURN server: %w", err)
		}
		if (uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS) && c.Username == "" {
			return fmt.Errorf("invalid Username value: should not be empty for TURN servers")
		}
	}
	return nil
}

type ICEServers []ICEServerConfig

func (s ICEServers) IsValid() error {
	for _, cfg := range s {
		if err := cfg.IsValid(); err != nil {
			return err
		}
	}
	return nil
}

func (s ICEServers) toWebRTC() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(s))
	for _, cfg := range s {
		srv := webrtc.ICEServer{
			URLs:     cfg.URLs,
			Username: cfg.Username,
		}
		if cfg.Credential != "" {
			srv.Credential = cfg.Credential
		}
		servers = append(servers, srv)
	}
	return servers
}

// ParseICEServers turns a list of plain STUN URLs into server configs.
func ParseICEServers(urls []string) (ICEServers, error) {
	var servers ICEServers
	for _, u := range urls {
		cfg := ICEServerConfig{URLs: []string{u}}
		if err := cfg.IsValid(); err != nil {
			return nil, err
		}
		servers = append(servers, cfg)
	}
	return servers, nil
}

type Config struct {
	// ICEServers holds the STUN/TURN servers to gather candidates from.
	ICEServers ICEServers `toml:"ice_servers"`
	// NACKBufferSize is the number of sent packets kept for retransmission.
	NACKBufferSize int `toml:"nack_buffer_size"`
	// IncludeLoopbackCandidates enables gathering candidates on loopback
	// interfaces.
	IncludeLoopbackCandidates bool `toml:"include_loopback_candidates"`
}

func (c *Config) SetDefaults() {
	if c.NACKBufferSize == 0 {
		c.NACKBufferSize = defaultNACKBufferSize
	}
}

func (c Config) IsValid() error {
	if err := c.ICEServers.IsValid(); err != nil {
		return fmt.Errorf("invalid ICEServers value: %w", err)
	}

	// The responder only accepts powers of two.
	if c.NACKBufferSize <= 0 || c.NACKBufferSize > 1<<15 || c.NACKBufferSize&(c.NACKBufferSize-1) != 0 {
		return fmt.Errorf("invalid NACKBufferSize value: should be a power of two in range [1, 32768]")
	}

	return nil
}
