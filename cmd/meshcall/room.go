// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"fmt"

	"github.com/mattermost/meshcall/client"

	"github.com/spf13/cobra"
)

func newCreateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Reserve a new room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := client.NewAPIClient(opts.siteURL)
			if err != nil {
				return err
			}

			code, err := api.CreateRoom(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create room: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderCreated(code))
			return nil
		},
	}
}

func newDescribeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "describe CODE",
		Aliases: []string{"info"},
		Short:   "Show the state of a room",
		Long: `Show whether a room exists along with its participant count and mode.

Examples:
  meshcall describe ABC123
  meshcall describe abc-123`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := client.NewAPIClient(opts.siteURL)
			if err != nil {
				return err
			}

			desc, err := api.DescribeRoom(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to describe room: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderDescription(desc))
			return nil
		},
	}
}
