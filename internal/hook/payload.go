// Package hook formats and delivers the decision-support payload the bridge
// sends to the hook sink for every ingested message.
package hook

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openclaw/wa-bridge/internal/conf"
	"github.com/openclaw/wa-bridge/internal/domain"
)

const bodyLimit = 1000

// BuildMessage assembles the multi-section hook text for one event. Pure and
// deterministic: same event, rules and port always produce the same string.
func BuildMessage(event domain.Event, rules *conf.Rules, port int) string {
	sender := senderName(event)
	group := ""
	if event.IsGroup {
		name := "?"
		if event.ChatName != nil && *event.ChatName != "" {
			name = *event.ChatName
		}
		group = fmt.Sprintf(" (grupo: %s)", name)
	}

	body := event.Body
	if body == "" {
		body = "[mídia]"
	}
	body = truncateBytes(body, bodyLimit)

	msgType := event.Type
	if msgType == "" {
		msgType = "chat"
	}

	lines := []string{
		"📱 WhatsApp message received:",
		fmt.Sprintf("From: %s%s", sender, group),
		fmt.Sprintf("WA ID: %s", event.From),
		fmt.Sprintf("Type: %s", msgType),
	}
	if event.HasMedia {
		lines = append(lines, "Has media: yes")
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Message: %s", body),
		"",
		"== CONTACT DIRECTORY ==",
		buildContactDirectory(rules.Contacts.Categories),
		"",
		"== ROUTING RULES ==",
		buildRoutingRules(rules.Contacts.Categories, rules.Contacts.Defaults, string(rules.Telegram.ChatID)),
		"",
		"== HOW TO REPLY ON WHATSAPP ==",
		fmt.Sprintf(`curl -s -X POST http://127.0.0.1:%d/send -H 'Content-Type: application/json' -d '{"to":"%s","message":"YOUR_REPLY"}'`, port, event.From),
	)
	return strings.Join(lines, "\n")
}

func senderName(event domain.Event) string {
	if event.PushName != nil && *event.PushName != "" {
		return *event.PushName
	}
	name := strings.ReplaceAll(event.From, domain.SuffixIndividual, "")
	return strings.ReplaceAll(name, domain.SuffixGroup, "")
}

func buildContactDirectory(categories conf.Categories) string {
	var lines []string
	for _, cat := range categories {
		lines = append(lines, strings.ToUpper(cat.Name)+":")
		for _, id := range cat.IDs {
			lines = append(lines, "  - "+id)
		}
		if cat.MatchName != "" {
			lines = append(lines, fmt.Sprintf("  - (match contact name: %s)", cat.MatchName))
		}
		if cat.Context != "" {
			lines = append(lines, "  Context: "+cat.Context)
		}
	}
	return strings.Join(lines, "\n")
}

func buildRoutingRules(categories conf.Categories, defaults conf.Defaults, tgChatID string) string {
	var lines []string
	i := 1
	for _, cat := range categories {
		var desc string
		switch cat.Action {
		case "reply-and-notify":
			style := cat.Style
			if style == "" {
				style = "default"
			}
			desc = fmt.Sprintf("Reply on WhatsApp (style: %s). ALWAYS notify on Telegram after.", style)
		case "notify-only":
			desc = "Do NOT reply on WhatsApp. Notify on Telegram with a brief summary."
		default:
			desc = "Action: " + cat.Action
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i, strings.ToUpper(cat.Name), desc))
		i++
	}
	if defaults.Groups.Action == "ignore" {
		lines = append(lines, fmt.Sprintf("%d. GROUPS (isGroup=true): Do NOT reply. Do NOT notify. Reply NO_REPLY.", i))
		i++
	}
	if defaults.Unknown.Action == "notify-only" {
		lines = append(lines, fmt.Sprintf("%d. SPAM / UNKNOWN / PROMOTIONAL: Do NOT reply on WhatsApp. Notify on Telegram with a brief summary.", i))
	}
	lines = append(lines,
		"",
		"== HOW TO NOTIFY ON TELEGRAM ==",
		fmt.Sprintf("Use the message tool: action=send, channel=telegram, target=%s, message=your summary", tgChatID),
	)
	return strings.Join(lines, "\n")
}

// MatchCategory returns the first category, in rules-file order, whose id
// list contains id or whose matchName is a case-insensitive substring of
// pushName. Nil when nothing matches.
func MatchCategory(id, pushName string, categories conf.Categories) *conf.Category {
	for i := range categories {
		cat := &categories[i]
		for _, member := range cat.IDs {
			if member == id {
				return cat
			}
		}
		if cat.MatchName != "" && pushName != "" &&
			strings.Contains(strings.ToLower(pushName), strings.ToLower(cat.MatchName)) {
			return cat
		}
	}
	return nil
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
