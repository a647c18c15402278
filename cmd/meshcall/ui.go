// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/mattermost/meshcall/client"
	"github.com/mattermost/meshcall/service"
	"github.com/mattermost/meshcall/service/room"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	primary = lipgloss.Color("#1e325c")
	accent  = lipgloss.Color("#5d89ea")
	success = lipgloss.Color("#06d6a0")
	danger  = lipgloss.Color("#d24b4e")
	muted   = lipgloss.Color("#6b7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(success)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(danger)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	codeStyle    = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primary).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	tableRowStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(muted)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableRowStyle
		})
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("Error: ")+err.Error())
}

func renderCreated(code string) string {
	return successStyle.Render("Room created ") + codeStyle.Render(code)
}

func renderDescription(desc room.Description) string {
	exists := "no"
	if desc.Exists {
		exists = "yes"
	}
	return newTable([]string{"Room", "Exists", "Participants", "Mode"}, [][]string{{
		desc.RoomID,
		exists,
		fmt.Sprintf("%d/%d", desc.Participants, desc.Capacity),
		string(desc.Mode),
	}}).Render()
}

func renderParticipants(mode room.Mode, participants []room.Participant) string {
	rows := make([][]string, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, []string{
			p.DisplayName,
			p.PeerID,
			onOff(p.MediaState.MicEnabled),
			onOff(p.MediaState.CamEnabled),
			onOff(p.MediaState.ScreenSharing),
		})
	}
	return titleStyle.Render(fmt.Sprintf("%d participant(s), %s", len(participants), mode)) + "\n" +
		newTable([]string{"Name", "Peer", "Mic", "Cam", "Screen"}, rows).Render()
}

func renderVersion(info service.VersionInfo) string {
	orNone := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	return newTable([]string{"Build", "Value"}, [][]string{
		{"Version", orNone(info.BuildVersion)},
		{"Hash", orNone(info.BuildHash)},
		{"Date", orNone(info.BuildDate)},
		{"Go", info.GoVersion},
		{"Platform", info.GoOS + "/" + info.GoArch},
	}).Render()
}

func timestamp(ms int64) string {
	return mutedStyle.Render(time.UnixMilli(ms).Format(time.TimeOnly))
}

// renderEvent formats a session event as printed by the join command. It
// returns an empty string for events that are not shown.
func renderEvent(ev client.Event, now time.Time) string {
	at := now.UnixMilli()
	switch ev.Type {
	case client.RoomStateEvent, client.ParticipantsUpdatedEvent:
		return renderParticipants(ev.Mode, ev.Participants)
	case client.PeerJoinedEvent:
		return timestamp(at) + " " + successStyle.Render("+ ") + ev.Participant.DisplayName + mutedStyle.Render(" joined ("+string(ev.Mode)+")")
	case client.PeerLeftEvent:
		name := ev.Participant.DisplayName
		if name == "" {
			name = ev.PeerID
		}
		return timestamp(at) + " " + errorStyle.Render("- ") + name + mutedStyle.Render(" left ("+string(ev.Mode)+")")
	case client.PeerMediaUpdatedEvent:
		ms := ev.Participant.MediaState
		return timestamp(at) + " " + ev.Participant.DisplayName + mutedStyle.Render(
			" mic "+onOff(ms.MicEnabled)+", cam "+onOff(ms.CamEnabled)+", screen "+onOff(ms.ScreenSharing))
	case client.ActiveSpeakerEvent:
		return timestamp(at) + " " + titleStyle.Render("speaking ") + ev.PeerID
	case client.ChatEvent:
		if ev.Chat.At != 0 {
			at = ev.Chat.At
		}
		name := ev.Chat.DisplayName
		if name == "" {
			name = ev.Chat.PeerID
		}
		return timestamp(at) + " " + titleStyle.Render(name+":") + " " + ev.Chat.Message
	case client.LinkStateEvent:
		return timestamp(at) + " " + mutedStyle.Render("link "+ev.PeerID+" "+ev.LinkState.String())
	case client.JoinErrorEvent:
		return timestamp(at) + " " + errorStyle.Render(ev.Err.Error())
	case client.DisconnectEvent:
		return timestamp(at) + " " + errorStyle.Render("disconnected from server")
	default:
		return ""
	}
}

func renderFingerprint(fp string) string {
	return titleStyle.Render("Encryption fingerprint ") + codeStyle.Render(fp) + "\n" +
		mutedStyle.Render("Compare it with the other participants.")
}
