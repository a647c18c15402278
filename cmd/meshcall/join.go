// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattermost/meshcall/client"
	"github.com/mattermost/meshcall/client/e2ee"
	"github.com/mattermost/meshcall/client/rtc"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/spf13/cobra"
)

const leaveTimeout = 5 * time.Second

// participant is a receive-only room member. It sends no media but still
// negotiates links so that it receives everyone else's.
type participant struct {
	log     *mlog.Logger
	cipher  *e2ee.Worker
	session *client.Session
}

func (o *rootOptions) join(ctx context.Context, code, name string) (*participant, error) {
	cfg := client.Config{
		SiteURL:     o.siteURL,
		RoomID:      code,
		DisplayName: name,
		ICEServers:  o.iceServers,
	}
	if err := cfg.Parse(); err != nil {
		return nil, err
	}

	servers, err := rtc.ParseICEServers(cfg.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("invalid ice-server value: %w", err)
	}

	log, err := o.newLogger()
	if err != nil {
		return nil, err
	}

	p := &participant{
		log:    log,
		cipher: e2ee.NewWorker(log),
	}

	engine, err := rtc.NewEngine(rtc.Config{ICEServers: servers}, log, rtc.WithCipher(p.cipher))
	if err != nil {
		p.shutdown()
		return nil, fmt.Errorf("failed to create media engine: %w", err)
	}

	sig, err := client.NewSignalClient(ctx, cfg.WSURL(), log)
	if err != nil {
		_ = engine.Close()
		p.shutdown()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	p.session, err = client.NewSession(cfg, sig, engine, client.LocalStream{},
		client.WithLogger(log), client.WithCipher(p.cipher))
	if err != nil {
		_ = sig.Close()
		_ = engine.Close()
		p.shutdown()
		return nil, err
	}

	if err := p.session.Join(ctx); err != nil {
		p.close()
		return nil, err
	}

	return p, nil
}

func (p *participant) shutdown() {
	p.cipher.Close()
	_ = p.log.Shutdown()
}

// close leaves the room, if still joined, and releases everything.
func (p *participant) close() {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := p.session.Leave(ctx); err != nil && !errors.Is(err, client.ErrNotJoined) && !errors.Is(err, client.ErrClosed) {
		p.log.Warn("failed to leave room", mlog.Err(err))
	}
	if err := p.session.Close(); err != nil {
		p.log.Warn("failed to close session", mlog.Err(err))
	}
	p.shutdown()
}

func newJoinCmd(opts *rootOptions) *cobra.Command {
	var (
		name       string
		passphrase string
	)

	cmd := &cobra.Command{
		Use:   "join CODE",
		Short: "Join a room as a receive-only participant",
		Long: `Join a room without sending any media and print what happens in it until
interrupted.

Examples:
  meshcall join ABC123 --name Alice
  meshcall join ABC123 --name Alice --passphrase "correct horse"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := opts.join(ctx, args[0], name)
			if err != nil {
				return fmt.Errorf("failed to join room: %w", err)
			}
			defer p.close()

			out := cmd.OutOrStdout()
			if passphrase != "" {
				fp, err := p.session.EnableEncryption(ctx, passphrase, passphrase)
				if err != nil {
					return fmt.Errorf("failed to enable encryption: %w", err)
				}
				fmt.Fprintln(out, renderFingerprint(fp))
			}

			for {
				select {
				case ev := <-p.session.Events():
					if line := renderEvent(ev, time.Now()); line != "" {
						fmt.Fprintln(out, line)
					}
					if ev.Type == client.DisconnectEvent {
						return errors.New("connection to server lost")
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name shown to the other participants")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Shared passphrase enabling end-to-end encryption")

	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "chat CODE MESSAGE",
		Short: "Join a room, send a chat message and leave",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			p, err := opts.join(ctx, args[0], name)
			if err != nil {
				return fmt.Errorf("failed to join room: %w", err)
			}
			defer p.close()

			if err := p.session.SendChat(ctx, args[1]); err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Message sent"))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name shown to the other participants")

	return cmd
}
