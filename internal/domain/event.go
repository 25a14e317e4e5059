package domain

import "time"

// TimestampLayout is the wire format for event timestamps, matching
// JavaScript's Date.toISOString (millisecond precision, always UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Event is the canonical record for one inbound message. It is what gets
// persisted to the pull queue and delivered to monitor webhooks.
type Event struct {
	Timestamp string  `json:"timestamp"`
	From      string  `json:"from"`
	PushName  *string `json:"pushName"`
	ChatName  *string `json:"chatName"`
	Author    *string `json:"author"`
	Body      string  `json:"body"`
	Type      string  `json:"type"`
	HasMedia  bool    `json:"hasMedia"`
	IsGroup   bool    `json:"isGroup"`
}

// Now returns the current time formatted for an event timestamp.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// StrPtr returns a pointer to s, or nil when s is empty. Event fields that
// the transport could not resolve serialise as JSON null.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
