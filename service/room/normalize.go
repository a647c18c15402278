// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package room

import (
	"strings"
)

// NormalizeCode upper-cases raw, strips anything outside [A-Z0-9] and
// truncates the result to MaxCodeLength characters.
func NormalizeCode(raw string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			continue
		}
		b.WriteRune(c)
		if b.Len() == MaxCodeLength {
			break
		}
	}
	return b.String()
}

// SanitizeName trims and truncates a display name, falling back to
// DefaultName when nothing is left.
func SanitizeName(raw string) string {
	name := strings.TrimSpace(raw)
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}
	if name == "" {
		return DefaultName
	}
	return name
}
