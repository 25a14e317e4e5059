package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MonitorSpec is one per-contact subscription. Keys in the registry are
// always normalised chat identifiers.
type MonitorSpec struct {
	Script    *Script `json:"script"`
	Webhook   *string `json:"webhook"`
	CreatedAt string  `json:"createdAt"`
}

// Script holds the keyword auto-reply table of a monitor.
type Script struct {
	Keywords Keywords `json:"keywords,omitempty"`
}

// Keyword is one substring → reply entry.
type Keyword struct {
	Match string
	Reply string
}

// Keywords is an ordered substring → reply mapping. JSON object key order is
// significant: auto-reply fires on the first entry whose key appears in the
// message body, so a plain Go map would change behaviour.
type Keywords []Keyword

// UnmarshalJSON decodes a JSON object preserving key order.
func (k *Keywords) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*k = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("keywords: expected object, got %v", tok)
	}
	out := Keywords{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("keywords: non-string key %v", keyTok)
		}
		var reply string
		if err := dec.Decode(&reply); err != nil {
			return fmt.Errorf("keywords: value for %q: %w", key, err)
		}
		out = append(out, Keyword{Match: key, Reply: reply})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*k = out
	return nil
}

// MarshalJSON writes the entries back out as a JSON object in order.
func (k Keywords) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kw := range k {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kw.Match)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(kw.Reply)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
