package conf

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleRules = `{
  "openclaw": { "hookUrl": "http://127.0.0.1:8080/hook", "hookToken": "tok" },
  "telegram": { "chatId": 123456789 },
  "ignoreIds": ["5511000@c.us"],
  "contacts": {
    "categories": {
      "family": { "ids": ["111@c.us", "222@c.us"], "action": "reply-and-notify", "style": "casual", "context": "Family members" },
      "work": { "matchName": "Boss", "action": "notify-only" }
    },
    "defaults": {
      "groups": { "action": "ignore" },
      "unknown": { "action": "notify-only" }
    }
  }
}`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hook-rules.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules(writeRules(t, sampleRules))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	if rules.OpenClaw.HookURL != "http://127.0.0.1:8080/hook" {
		t.Errorf("hookUrl mismatch: %q", rules.OpenClaw.HookURL)
	}
	if rules.Telegram.ChatID != "123456789" {
		t.Errorf("chatId mismatch: %q", rules.Telegram.ChatID)
	}
	if !rules.Ignored("5511000@c.us") {
		t.Error("expected 5511000@c.us to be ignored")
	}
	if rules.Ignored("111@c.us") {
		t.Error("111@c.us should not be ignored")
	}

	cats := rules.Contacts.Categories
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].Name != "family" || cats[1].Name != "work" {
		t.Errorf("category order not preserved: %q, %q", cats[0].Name, cats[1].Name)
	}
	if cats[0].Style != "casual" || cats[0].Context != "Family members" {
		t.Errorf("family category fields mismatch: %+v", cats[0])
	}
	if cats[1].MatchName != "Boss" {
		t.Errorf("work matchName mismatch: %q", cats[1].MatchName)
	}
	if rules.Contacts.Defaults.Groups.Action != "ignore" {
		t.Errorf("groups default mismatch: %q", rules.Contacts.Defaults.Groups.Action)
	}
}

func TestLoadRulesMissing(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "hook-rules.json")); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}

func TestLoadRulesMalformed(t *testing.T) {
	if _, err := LoadRules(writeRules(t, `{"openclaw": `)); err == nil {
		t.Fatal("expected error for malformed rules file")
	}
}

func TestChatIDString(t *testing.T) {
	rules, err := LoadRules(writeRules(t, `{"telegram": {"chatId": "-100987"}}`))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.Telegram.ChatID != "-100987" {
		t.Errorf("quoted chatId mismatch: %q", rules.Telegram.ChatID)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hook-rules.json"), []byte(sampleRules), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	t.Setenv("WA_BRIDGE_DIR", dir)
	t.Setenv("PORT", "4242")
	t.Setenv("WA_API_TOKEN", "secret123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4242 {
		t.Errorf("port mismatch: %d", cfg.Port)
	}
	if cfg.APIToken != "secret123" {
		t.Errorf("token mismatch: %q", cfg.APIToken)
	}
	if cfg.MonitorsFile() != filepath.Join(dir, "monitors.json") {
		t.Errorf("monitors path mismatch: %q", cfg.MonitorsFile())
	}
	if cfg.EventsDir() != filepath.Join(dir, "events") {
		t.Errorf("events dir mismatch: %q", cfg.EventsDir())
	}
}

func TestLoadFatalWithoutRules(t *testing.T) {
	t.Setenv("WA_BRIDGE_DIR", t.TempDir())
	if _, err := Load(); err == nil {
		t.Fatal("expected error when hook-rules.json is absent")
	}
}
