package hook

import (
	"strings"
	"testing"

	"github.com/openclaw/wa-bridge/internal/conf"
	"github.com/openclaw/wa-bridge/internal/domain"
)

func sampleRules() *conf.Rules {
	return &conf.Rules{
		OpenClaw: conf.OpenClawRules{HookURL: "http://127.0.0.1:8080/hook", HookToken: "tok"},
		Telegram: conf.TelegramRules{ChatID: "987654"},
		Contacts: conf.ContactRules{
			Categories: conf.Categories{
				{Name: "family", IDs: []string{"111@c.us", "222@c.us"}, Action: "reply-and-notify", Style: "casual", Context: "Family members"},
				{Name: "work", MatchName: "Boss", Action: "notify-only"},
			},
			Defaults: conf.Defaults{
				Groups:  conf.ActionRule{Action: "ignore"},
				Unknown: conf.ActionRule{Action: "notify-only"},
			},
		},
	}
}

func TestBuildMessageComposition(t *testing.T) {
	event := domain.Event{
		From:     "111@c.us",
		PushName: domain.StrPtr("Mom"),
		Body:     "Hey there!",
		Type:     "chat",
	}

	msg := BuildMessage(event, sampleRules(), 3100)

	expects := []string{
		"From: Mom",
		"WA ID: 111@c.us",
		"Type: chat",
		"Message: Hey there!",
		"FAMILY:",
		"  - 111@c.us",
		"  - 222@c.us",
		"  Context: Family members",
		"WORK:",
		"  - (match contact name: Boss)",
		"1. FAMILY: Reply on WhatsApp (style: casual). ALWAYS notify on Telegram after.",
		"2. WORK: Do NOT reply on WhatsApp. Notify on Telegram with a brief summary.",
		"3. GROUPS (isGroup=true): Do NOT reply. Do NOT notify. Reply NO_REPLY.",
		"4. SPAM / UNKNOWN / PROMOTIONAL: Do NOT reply on WhatsApp. Notify on Telegram with a brief summary.",
		"target=987654",
		`curl -s -X POST http://127.0.0.1:3100/send -H 'Content-Type: application/json' -d '{"to":"111@c.us","message":"YOUR_REPLY"}'`,
	}
	for _, want := range expects {
		if !strings.Contains(msg, want) {
			t.Errorf("hook message missing %q\nmessage:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Has media") {
		t.Error("media flag should be absent for text messages")
	}
}

func TestBuildMessageMediaAndGroup(t *testing.T) {
	event := domain.Event{
		From:     "123-456@g.us",
		ChatName: domain.StrPtr("Projeto"),
		Type:     "image",
		HasMedia: true,
		IsGroup:  true,
	}

	msg := BuildMessage(event, sampleRules(), 3100)

	for _, want := range []string{
		"From: 123-456 (grupo: Projeto)",
		"Has media: yes",
		"Message: [mídia]",
		"Type: image",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("hook message missing %q\nmessage:\n%s", want, msg)
		}
	}
}

func TestBuildMessageTruncatesBody(t *testing.T) {
	event := domain.Event{
		From: "111@c.us",
		Body: strings.Repeat("a", 1500),
		Type: "chat",
	}

	msg := BuildMessage(event, sampleRules(), 3100)

	if strings.Contains(msg, strings.Repeat("a", 1001)) {
		t.Error("body not truncated to 1000 bytes")
	}
	if !strings.Contains(msg, strings.Repeat("a", 1000)) {
		t.Error("truncated body should keep 1000 bytes")
	}
}

func TestBuildMessageDeterministic(t *testing.T) {
	event := domain.Event{From: "111@c.us", PushName: domain.StrPtr("Mom"), Body: "x", Type: "chat"}
	rules := sampleRules()
	if BuildMessage(event, rules, 3100) != BuildMessage(event, rules, 3100) {
		t.Error("BuildMessage must be deterministic")
	}
}

func TestMatchCategory(t *testing.T) {
	cats := sampleRules().Contacts.Categories

	tests := []struct {
		id       string
		pushName string
		want     string
	}{
		{"111@c.us", "", "family"},
		{"222@c.us", "Whoever", "family"},
		{"333@c.us", "The Boss Man", "work"},
		{"333@c.us", "the boss", "work"},
		{"333@c.us", "Nobody", ""},
		{"333@c.us", "", ""},
	}

	for _, tt := range tests {
		got := MatchCategory(tt.id, tt.pushName, cats)
		name := ""
		if got != nil {
			name = got.Name
		}
		if name != tt.want {
			t.Errorf("MatchCategory(%q, %q) = %q, want %q", tt.id, tt.pushName, name, tt.want)
		}
	}
}

func TestMatchCategoryFirstWins(t *testing.T) {
	cats := conf.Categories{
		{Name: "first", IDs: []string{"1@c.us"}},
		{Name: "second", IDs: []string{"1@c.us"}, MatchName: "One"},
	}
	got := MatchCategory("1@c.us", "One", cats)
	if got == nil || got.Name != "first" {
		t.Errorf("expected first category by insertion order, got %+v", got)
	}
}

func TestTruncateBytesRuneBoundary(t *testing.T) {
	s := "aé" // é is two bytes
	if got := truncateBytes(s, 2); got != "a" {
		t.Errorf("truncateBytes(%q, 2) = %q, want \"a\"", s, got)
	}
	if got := truncateBytes(s, 3); got != s {
		t.Errorf("truncateBytes(%q, 3) = %q, want %q", s, got, s)
	}
}
