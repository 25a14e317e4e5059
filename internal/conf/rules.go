package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Rules is the routing configuration from hook-rules.json. It is loaded once
// at startup and never reloaded; downstream components treat it as immutable.
type Rules struct {
	OpenClaw  OpenClawRules `json:"openclaw"`
	Telegram  TelegramRules `json:"telegram"`
	IgnoreIDs []string      `json:"ignoreIds"`
	Contacts  ContactRules  `json:"contacts"`
}

// OpenClawRules points at the hook sink.
type OpenClawRules struct {
	HookURL   string `json:"hookUrl"`
	HookToken string `json:"hookToken"`
}

// TelegramRules carries the Telegram chat the hook sink should notify.
type TelegramRules struct {
	ChatID FlexString `json:"chatId"`
}

// ContactRules groups the contact categories and the fallback actions.
type ContactRules struct {
	Categories Categories `json:"categories"`
	Defaults   Defaults   `json:"defaults"`
}

// Defaults holds the actions applied when no category matches.
type Defaults struct {
	Groups  ActionRule `json:"groups"`
	Unknown ActionRule `json:"unknown"`
}

// ActionRule is a bare action selector.
type ActionRule struct {
	Action string `json:"action"`
}

// Category is one contact category from the rules file.
type Category struct {
	Name      string   `json:"-"`
	IDs       []string `json:"ids,omitempty"`
	MatchName string   `json:"matchName,omitempty"`
	Action    string   `json:"action,omitempty"`
	Style     string   `json:"style,omitempty"`
	Context   string   `json:"context,omitempty"`
}

// Categories preserves the JSON object order of the rules file. Category
// matching is first-match-wins and routing rules are numbered, so insertion
// order is part of the contract.
type Categories []Category

// UnmarshalJSON decodes a JSON object of categories preserving key order.
func (c *Categories) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("categories: expected object, got %v", tok)
	}
	out := Categories{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("categories: non-string key %v", keyTok)
		}
		var cat Category
		if err := dec.Decode(&cat); err != nil {
			return fmt.Errorf("categories: %q: %w", name, err)
		}
		cat.Name = name
		out = append(out, cat)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// FlexString accepts either a JSON string or a bare number. Telegram chat
// ids appear both quoted and unquoted in the wild.
type FlexString string

// UnmarshalJSON implements the lenient decoding.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// LoadRules reads and parses the routing configuration. Beyond parseability
// no validation happens here; consumers tolerate missing optional fields.
func LoadRules(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load hook rules: %w", err)
	}
	var rules Rules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse hook rules %s: %w", path, err)
	}
	return &rules, nil
}

// Ignored reports whether id is on the ignore list. The list holds the
// bridge's own identifiers to break echo loops.
func (r *Rules) Ignored(id string) bool {
	for _, ignored := range r.IgnoreIDs {
		if ignored == id {
			return true
		}
	}
	return false
}
