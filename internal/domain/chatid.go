package domain

import "strings"

// Chat identifier suffixes. Individual chats end in @c.us, groups in @g.us.
// The number portion is opaque to the bridge.
const (
	SuffixIndividual = "@c.us"
	SuffixGroup      = "@g.us"
)

// StatusBroadcast is the pseudo-chat WhatsApp uses for status updates.
// Inbound messages from it are always dropped.
const StatusBroadcast = "status@broadcast"

// NormalizeChatID appends the @c.us or @g.us suffix to a bare numeric id.
// Identifiers that already contain an @ pass through unchanged, so the
// function is idempotent on normalised input.
func NormalizeChatID(id string, group bool) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	if strings.Contains(id, "@") {
		return id
	}
	if group {
		return id + SuffixGroup
	}
	return id + SuffixIndividual
}

// IsGroupID reports whether id addresses a group chat.
func IsGroupID(id string) bool {
	return strings.Contains(id, "g.us")
}

// SanitizeID maps a chat identifier to a filesystem-safe name for the
// per-monitor log files: every non-alphanumeric rune becomes an underscore.
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
