// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"fmt"

	"github.com/mattermost/meshcall/service"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// loadConfig returns a new service.Config starting from the defaults and
// applying the config file at path, if any. Environment variables
// corresponding to a specific setting take precedence over both.
func loadConfig(path string) (service.Config, error) {
	var cfg service.Config
	cfg.SetDefaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	if err := envconfig.Process("meshcall", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
