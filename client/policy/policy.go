// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package policy decides which remote peers receive the local video.
//
// The decision is computed by every client from its own view of the room and
// is never arbitrated. Two clients looking at different snapshots of the same
// room can disagree on who should receive video.
package policy

import (
	"sort"

	"github.com/mattermost/meshcall/service/room"
)

// FullVideoSlots is the number of peers receiving video while a room is in
// constrained mode.
const FullVideoSlots = 3

// AllowedVideo returns the peers that should receive the local video. In mesh
// mode that's every peer. In constrained mode peers are deduplicated, sorted
// lexicographically and only the first FullVideoSlots are kept.
func AllowedVideo(mode room.Mode, peers []string) []string {
	if mode != room.ModeConstrained {
		out := make([]string, len(peers))
		copy(out, peers)
		return out
	}

	seen := make(map[string]struct{}, len(peers))
	ranked := make([]string, 0, len(peers))
	for _, p := range peers {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		ranked = append(ranked, p)
	}
	sort.Strings(ranked)

	if len(ranked) > FullVideoSlots {
		ranked = ranked[:FullVideoSlots]
	}

	return ranked
}

// IncludesVideo reports whether target should receive the local video given
// the peers currently known. target is considered part of known even if it's
// missing from it.
func IncludesVideo(mode room.Mode, known []string, target string) bool {
	if mode != room.ModeConstrained {
		return true
	}

	peers := make([]string, 0, len(known)+1)
	peers = append(peers, known...)
	peers = append(peers, target)

	for _, p := range AllowedVideo(mode, peers) {
		if p == target {
			return true
		}
	}

	return false
}
