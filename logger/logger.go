// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const targetQueueSize = 1000

func getLevels(level string) []mlog.Level {
	var levels []mlog.Level
	for _, l := range mlog.StdAll {
		levels = append(levels, l)
		if l.Name == strings.ToLower(level) {
			break
		}
	}
	return levels
}

func formatFor(asJSON, color bool) (string, json.RawMessage) {
	if asJSON {
		return "json", json.RawMessage(`{"enable_caller": true}`)
	}
	return "plain", json.RawMessage(fmt.Sprintf(`{"delim": " ", "min_level_len": 5, "min_msg_len": 45, "enable_color": %t, "enable_caller": true}`, color))
}

func targetsFor(config Config) (mlog.LoggerConfiguration, error) {
	cfg := mlog.LoggerConfiguration{}

	if config.EnableConsole {
		out := config.ConsoleOutput
		if out == "" {
			out = "stdout"
		}
		opts, err := json.Marshal(map[string]string{"out": out})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal console options: %w", err)
		}
		format, formatOpts := formatFor(config.ConsoleJSON, config.EnableColor)
		cfg["_defConsole"] = mlog.TargetCfg{
			Type:          "console",
			Levels:        getLevels(config.ConsoleLevel),
			Options:       opts,
			Format:        format,
			FormatOptions: formatOpts,
			MaxQueueSize:  targetQueueSize,
		}
	}

	if config.EnableFile {
		opts, err := json.Marshal(map[string]any{
			"filename":    config.FileLocation,
			"max_size":    100,
			"max_age":     0,
			"max_backups": 0,
			"compress":    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal file options: %w", err)
		}
		format, formatOpts := formatFor(config.FileJSON, false)
		cfg["_defFile"] = mlog.TargetCfg{
			Type:          "file",
			Levels:        getLevels(config.FileLevel),
			Options:       opts,
			Format:        format,
			FormatOptions: formatOpts,
			MaxQueueSize:  targetQueueSize,
		}
	}

	return cfg, nil
}

// New returns a newly created and initialized logger with the given cfg.
func New(config Config) (*mlog.Logger, error) {
	if err := config.IsValid(); err != nil {
		return nil, err
	}

	targets, err := targetsFor(config)
	if err != nil {
		return nil, err
	}

	logger, err := mlog.NewLogger()
	if err != nil {
		return nil, err
	}

	if err := logger.ConfigureTargets(targets, nil); err != nil {
		_ = logger.Shutdown()
		return nil, err
	}

	return logger, nil
}
