// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"time"

	"github.com/mattermost/meshcall/logger"
	"github.com/mattermost/meshcall/service/api"
)

type APIConfig struct {
	HTTP api.Config `toml:"http"`
	// EnableProfiling exposes delta profiles under /debug/pprof.
	EnableProfiling bool `toml:"enable_profiling"`
}

func (c APIConfig) IsValid() error {
	if err := c.HTTP.IsValid(); err != nil {
		return fmt.Errorf("failed to validate http config: %w", err)
	}

	return nil
}

type SignalingConfig struct {
	// PingIntervalSeconds is how often connections get pinged. Connections
	// that fail to answer within two intervals are dropped.
	PingIntervalSeconds int `toml:"ping_interval_seconds"`
	// RoomReservationTTLMinutes is how long a room created through the API
	// is kept while nobody joins it.
	RoomReservationTTLMinutes int `toml:"room_reservation_ttl_minutes"`
	// MessageRateLimit is the sustained number of messages per second a
	// single connection is allowed to send.
	MessageRateLimit float64 `toml:"message_rate_limit"`
	// MessageBurst is the maximum number of messages a connection can send
	// at once.
	MessageBurst int `toml:"message_burst"`
}

func (c SignalingConfig) IsValid() error {
	if c.PingIntervalSeconds < 1 {
		return fmt.Errorf("invalid PingIntervalSeconds value: should be at least 1")
	}

	if c.RoomReservationTTLMinutes < 1 {
		return fmt.Errorf("invalid RoomReservationTTLMinutes value: should be at least 1")
	}

	if c.MessageRateLimit <= 0 {
		return fmt.Errorf("invalid MessageRateLimit value: should be greater than zero")
	}

	if c.MessageBurst < 1 {
		return fmt.Errorf("invalid MessageBurst value: should be at least 1")
	}

	return nil
}

func (c SignalingConfig) pingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

func (c SignalingConfig) reservationTTL() time.Duration {
	return time.Duration(c.RoomReservationTTLMinutes) * time.Minute
}

type Config struct {
	API       APIConfig
	Signaling SignalingConfig
	Logger    logger.Config
}

func (c Config) IsValid() error {
	if err := c.API.IsValid(); err != nil {
		return err
	}

	if err := c.Signaling.IsValid(); err != nil {
		return fmt.Errorf("failed to validate signaling config: %w", err)
	}

	return c.Logger.IsValid()
}

func (c *Config) SetDefaults() {
	c.API.HTTP.ListenAddress = "127.0.0.1:3000"
	c.Signaling.PingIntervalSeconds = 10
	c.Signaling.RoomReservationTTLMinutes = 10
	c.Signaling.MessageRateLimit = 50
	c.Signaling.MessageBurst = 100
	c.Logger.EnableConsole = true
	c.Logger.ConsoleJSON = false
	c.Logger.ConsoleLevel = "INFO"
	c.Logger.EnableFile = true
	c.Logger.FileJSON = true
	c.Logger.FileLocation = "meshcall.log"
	c.Logger.FileLevel = "DEBUG"
	c.Logger.EnableColor = false
}
