// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"fmt"

	"github.com/mattermost/meshcall/logger"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/spf13/cobra"
)

const (
	defaultSiteURL   = "http://127.0.0.1:3000"
	defaultICEServer = "stun:stun.l.google.com:19302"
)

type rootOptions struct {
	siteURL    string
	logLevel   string
	iceServers []string
}

func (o *rootOptions) newLogger() (*mlog.Logger, error) {
	log, err := logger.New(logger.Config{
		EnableConsole: true,
		ConsoleLevel:  o.logLevel,
		ConsoleOutput: "stderr",
		EnableColor:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "meshcall",
		Short: "Join and inspect meshcall rooms",
		Long: `meshcall talks to a meshcalld signaling server to create rooms, inspect
them and join them as a receive-only participant.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&opts.siteURL, "url", defaultSiteURL, "Base URL of the meshcalld server")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "Console log level")
	cmd.PersistentFlags().StringSliceVar(&opts.iceServers, "ice-server", []string{defaultICEServer}, "STUN server URL, can be repeated")

	cmd.AddCommand(
		newCreateCmd(opts),
		newDescribeCmd(opts),
		newJoinCmd(opts),
		newChatCmd(opts),
		newVersionCmd(),
	)

	return cmd
}
