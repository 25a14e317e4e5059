package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openclaw/wa-bridge/internal/domain"
	"github.com/openclaw/wa-bridge/internal/monitor"
	"github.com/openclaw/wa-bridge/internal/queue"
	"github.com/openclaw/wa-bridge/internal/transport"
)

type fakeTransport struct {
	chats    []domain.Chat
	contacts []domain.Contact
	messages map[string][]domain.Message
	media    map[string]*domain.Media

	sentTo   []string
	sentText []string
	sendErr  error
}

func (f *fakeTransport) Initialize(ctx context.Context) error { return nil }
func (f *fakeTransport) Destroy() error                       { return nil }
func (f *fakeTransport) OnMessage(transport.MessageHandler)   {}

func (f *fakeTransport) GetChats(ctx context.Context) ([]domain.Chat, error) {
	return f.chats, nil
}

func (f *fakeTransport) GetChatByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	for i := range f.chats {
		if f.chats[i].ID == chatID {
			return &f.chats[i], nil
		}
	}
	return nil, transport.ErrNotFound
}

func (f *fakeTransport) GetContacts(ctx context.Context) ([]domain.Contact, error) {
	return f.contacts, nil
}

func (f *fakeTransport) GetContact(ctx context.Context, chatID string) (*domain.Contact, error) {
	for i := range f.contacts {
		if f.contacts[i].ID == chatID {
			return &f.contacts[i], nil
		}
	}
	return nil, transport.ErrNotFound
}

func (f *fakeTransport) SearchMessages(ctx context.Context, query string, opts transport.SearchOptions) ([]domain.Message, error) {
	var out []domain.Message
	for _, msgs := range f.messages {
		for _, m := range msgs {
			if opts.ChatID != "" && m.ChatID != opts.ChatID {
				continue
			}
			if strings.Contains(strings.ToLower(m.Body), strings.ToLower(query)) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sentTo = append(f.sentTo, chatID)
	f.sentText = append(f.sentText, text)
	return fmt.Sprintf("MSG%d", len(f.sentTo)), nil
}

func (f *fakeTransport) FetchMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	msgs := f.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeTransport) DownloadMedia(ctx context.Context, chatID, serializedID string) (*domain.Media, error) {
	if m, ok := f.media[serializedID]; ok {
		return m, nil
	}
	return nil, transport.ErrNoMedia
}

type fixture struct {
	server    *Server
	transport *fakeTransport
	state     *transport.State
	queue     *queue.Queue
	monitors  *monitor.Registry
	ts        *httptest.Server
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	dir := t.TempDir()

	q, err := queue.New(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	reg := monitor.Load(filepath.Join(dir, "monitors.json"))
	ft := &fakeTransport{
		messages: map[string][]domain.Message{},
		media:    map[string]*domain.Media{},
	}
	st := transport.NewState()

	srv := NewServer(token, 0, q, reg, ft, st, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: srv, transport: ft, state: st, queue: q, monitors: reg, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, "secret")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong token", "nope", http.StatusUnauthorized},
		{"valid token", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodGet, "/status", tt.token, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
			if tt.want == http.StatusUnauthorized {
				var e map[string]string
				if err := json.Unmarshal(body, &e); err != nil {
					t.Fatalf("unmarshal error body: %v", err)
				}
				if e["error"] != "Unauthorized" {
					t.Fatalf("error = %q, want Unauthorized", e["error"])
				}
			}
		})
	}
}

func TestAuthDisabledWhenTokenEmpty(t *testing.T) {
	f := newFixture(t, "")
	resp, _ := f.do(t, http.MethodGet, "/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestConnectionGating(t *testing.T) {
	f := newFixture(t, "secret")

	gated := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/chats"},
		{http.MethodGet, "/chats/123/messages"},
		{http.MethodGet, "/contacts"},
		{http.MethodGet, "/contacts/search?q=x"},
		{http.MethodGet, "/groups"},
		{http.MethodGet, "/search?q=x"},
		{http.MethodPost, "/send"},
	}
	for _, g := range gated {
		resp, body := f.do(t, g.method, g.path, "secret", nil)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: status = %d, want 503", g.method, g.path, resp.StatusCode)
		}
		var e map[string]string
		if err := json.Unmarshal(body, &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e["error"] != "WhatsApp client is not connected" {
			t.Fatalf("error = %q", e["error"])
		}
	}

	// Queue and monitor endpoints stay reachable while disconnected.
	for _, path := range []string{"/events", "/events/peek", "/monitor", "/status", "/qr"} {
		resp, _ := f.do(t, http.MethodGet, path, "secret", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s while disconnected: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestStatusReflectsState(t *testing.T) {
	f := newFixture(t, "secret")

	_, body := f.do(t, http.MethodGet, "/status", "secret", nil)
	var got struct {
		Status string              `json:"status"`
		Info   *domain.SessionInfo `json:"info"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != transport.StatusDisconnected || got.Info != nil {
		t.Fatalf("got %+v, want disconnected with nil info", got)
	}

	f.state.SetReady(&domain.SessionInfo{Pushname: "Bridge", WID: "111@c.us", Platform: "smba"})
	_, body = f.do(t, http.MethodGet, "/status", "secret", nil)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != transport.StatusConnected || got.Info == nil || got.Info.Pushname != "Bridge" {
		t.Fatalf("got %+v, want connected with info", got)
	}
}

func TestQREndpoint(t *testing.T) {
	f := newFixture(t, "secret")

	_, body := f.do(t, http.MethodGet, "/qr", "secret", nil)
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["qr"] != nil || got["message"] != "No QR available yet" {
		t.Fatalf("got %v", got)
	}

	f.state.SetQR("2@pairing-code")
	_, body = f.do(t, http.MethodGet, "/qr", "secret", nil)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["qr"] != "2@pairing-code" {
		t.Fatalf("qr = %v", got["qr"])
	}
	b64, _ := got["base64"].(string)
	if !strings.HasPrefix(b64, "data:image/png;base64,") {
		t.Fatalf("base64 = %q, want png data URL", b64)
	}

	f.state.SetReady(nil)
	_, body = f.do(t, http.MethodGet, "/qr", "secret", nil)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["qr"] != nil || got["message"] != "Already authenticated" {
		t.Fatalf("after auth got %v", got)
	}
}

func TestEventsDrainAndPeek(t *testing.T) {
	f := newFixture(t, "secret")

	for i := 0; i < 3; i++ {
		if err := f.queue.Push(domain.Event{
			Timestamp: domain.Now(),
			From:      "111@c.us",
			Body:      fmt.Sprintf("msg %d", i),
			Type:      "chat",
		}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	_, body := f.do(t, http.MethodGet, "/events/peek", "secret", nil)
	var events []domain.Event
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("peek returned %d events, want 3", len(events))
	}

	// Peek does not consume.
	_, body = f.do(t, http.MethodGet, "/events/peek", "secret", nil)
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("second peek returned %d events, want 3", len(events))
	}

	_, body = f.do(t, http.MethodGet, "/events", "secret", nil)
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) != 3 || events[0].Body != "msg 0" || events[2].Body != "msg 2" {
		t.Fatalf("drain returned %+v", events)
	}

	_, body = f.do(t, http.MethodGet, "/events", "secret", nil)
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("second drain returned %d events, want 0", len(events))
	}
}

func TestChatsProjection(t *testing.T) {
	f := newFixture(t, "secret")
	f.state.SetReady(nil)

	long := strings.Repeat("x", 150)
	f.transport.chats = []domain.Chat{
		{
			ID: "111@c.us", Name: "Alice", UnreadCount: 2, Timestamp: 1700000000,
			LastMessage: &domain.LastMessage{Body: long, FromMe: true},
		},
		{ID: "222-group@g.us", Name: "Team", IsGroup: true},
	}

	_, body := f.do(t, http.MethodGet, "/chats", "secret", nil)
	var got []chatView
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chats", len(got))
	}
	if got[0].LastMessage == nil || len([]rune(got[0].LastMessage.Body)) != 100 {
		t.Fatalf("lastMessage not truncated to 100 chars: %+v", got[0].LastMessage)
	}
	if !got[0].LastMessage.FromMe {
		t.Fatalf("fromMe lost in projection")
	}
	if got[1].LastMessage != nil {
		t.Fatalf("chat without last message should project null, got %+v", got[1].LastMessage)
	}
}

func TestChatMessagesNormalizesAndClamps(t *testing.T) {
	f := newFixture(t, "secret")
	f.state.SetReady(nil)

	msgs := make([]domain.Message, 0, 150)
	for i := 0; i < 150; i++ {
		msgs = append(msgs, domain.Message{
			ID:     fmt.Sprintf("false_111@c.us_M%d", i),
			ChatID: "111@c.us",
			From:   "111@c.us",
			Body:   fmt.Sprintf("m%d", i),
		})
	}
	f.transport.messages["111@c.us"] = msgs

	// Bare id gets the individual suffix before the transport sees it.
	_, body := f.do(t, http.MethodGet, "/chats/111/messages", "secret", nil)
	var got []messageView
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("default limit: got %d messages, want 20", len(got))
	}

	_, body = f.do(t, http.MethodGet, "/chats/111/messages?limit=500", "secret", nil)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("clamped limit: got %d messages, want 100", len(got))
	}
}

func TestContactsSearch(t *testing.T) {
	f := newFixture(t, "secret")
	f.state.SetReady(nil)
	f.transport.contacts = []domain.Contact{
		{ID: "111@c.us", Name: "Alice Smith", Number: "111", IsMyContact: true},
		{ID: "222@c.us", PushName: "bob", Number: "222"},
	}

	resp, body := f.do(t, http.MethodGet, "/contacts/search", "secret", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing q: status = %d, want 400", resp.StatusCode)
	}
	var e map[string]string
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e["error"] != "Missing query parameter q" {
		t.Fatalf("error = %q", e["error"])
	}

	_, body = f.do(t, http.MethodGet, "/contacts/search?q=ALICE", "secret", nil)
	var got []contactView
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].ID != "111@c.us" {
		t.Fatalf("got %+v", got)
	}

	// PushName fallback participates in matching.
	_, body = f.do(t, http.MethodGet, "/contacts/search?q=bob", "secret", nil)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].ID != "222@c.us" {
		t.Fatalf("got %+v", got)
	}
}

func TestGroupEndpoints(t *testing.T) {
	f := newFixture(t, "secret")
	f.state.SetReady(nil)
	f.transport.chats = []domain.Chat{
		{ID: "111@c.us", Name: "Alice"},
		{
			ID: "grp-1@g.us", Name: "Family", IsGroup: true,
			Group: &domain.GroupMetadata{
				Description: "the family",
				Participants: []domain.Participant{
					{ID: "111@c.us", IsAdmin: true},
					{ID: "222@c.us"},
				},
				CreatedAt: 1600000000,
			},
		},
	}

	_, body := f.do(t, http.MethodGet, "/groups", "secret", nil)
	var groups []groupView
	if err := json.Unmarshal(body, &groups); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "grp-1@g.us" || groups[0].Participants == nil || *groups[0].Participants != 2 {
		t.Fatalf("got %+v", groups)
	}

	_, body = f.do(t, http.MethodGet, "/groups/search?q=fam", "secret", nil)
	if err := json.Unmarshal(body, &groups); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("search got %+v", groups)
	}

	_, body = f.do(t, http.MethodGet, "/groups/grp-1@g.us/info", "secret", nil)
	var info struct {
		ID           string               `json:"id"`
		Name         string               `json:"name"`
		Description  *string              `json:"description"`
		Participants []domain.Participant `json:"participants"`
		CreatedAt    *int64               `json:"createdAt"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Name != "Family" || info.Description == nil || *info.Description != "the family" || len(info.Participants) != 2 {
		t.Fatalf("got %+v", info)
	}

	resp, body := f.do(t, http.MethodGet, "/groups/111@c.us/info", "secret", nil)
	_ = body
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-group info: status = %d, want 400", resp.StatusCode)
	}
}

func TestSendValidationAndNormalization(t *testing.T) {
	f := newFixture(t, "secret")
	f.state.SetReady(nil)

	resp, body := f.do(t, http.MethodPost, "/send", "secret", map[string]string{"to": "555"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var e map[string]string
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e["error"] != "Missing required fields: to, message" {
		t.Fatalf("error = %q", e["error"])
	}

	_, body = f.do(t, http.MethodPost, "/send", "secret", map[string]string{"to": "555", "message": "hi"})
	var ok struct {
		Success   bool   `json:"success"`
		MessageID string `json:"messageId"`
		To        string `json:"to"`
	}
	if err := json.Unmarshal(body, &ok); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ok.Success || ok.To != "555@c.us" || ok.MessageID == "" {
		t.Fatalf("got %+v", ok)
	}
	if len(f.transport.sentTo) != 1 || f.transport.sentTo[0] != "555@c.us" {
		t.Fatalf("sent to %v", f.transport.sentTo)
	}

	_, body = f.do(t, http.MethodPost, "/send-group", "secret", map[string]string{"groupId": "grp-1", "message": "all"})
	if err := json.Unmarshal(body, &ok); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok.To != "grp-1@g.us" {
		t.Fatalf("group send to %q, want grp-1@g.us", ok.To)
	}
}

func TestMediaEndpoint(t *testing.T) {
	f := newFixture(t, "secret")
	f.state.SetReady(nil)

	f.transport.messages["111@c.us"] = []domain.Message{
		{ID: "false_111@c.us_M1", ChatID: "111@c.us", Body: "text only"},
		{ID: "false_111@c.us_M2", ChatID: "111@c.us", HasMedia: true, Type: "image"},
	}
	f.transport.media["false_111@c.us_M2"] = &domain.Media{
		Mimetype: "image/jpeg",
		Data:     "aGVsbG8=",
		Filename: domain.StrPtr("photo.jpg"),
	}

	resp, _ := f.do(t, http.MethodGet, "/messages/garbage/media", "secret", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodGet, "/messages/false_111@c.us_MISSING/media", "secret", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown message: status = %d, want 404", resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodGet, "/messages/false_111@c.us_M1/media", "secret", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no media: status = %d, want 400 (body %s)", resp.StatusCode, body)
	}

	_, body = f.do(t, http.MethodGet, "/messages/false_111@c.us_M2/media", "secret", nil)
	var media domain.Media
	if err := json.Unmarshal(body, &media); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if media.Mimetype != "image/jpeg" || media.Data != "aGVsbG8=" {
		t.Fatalf("got %+v", media)
	}
}

func TestMonitorCRUD(t *testing.T) {
	f := newFixture(t, "secret")

	_, body := f.do(t, http.MethodGet, "/monitor", "secret", nil)
	var list []monitor.Entry
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("fresh registry lists %d entries", len(list))
	}

	resp, body := f.do(t, http.MethodPost, "/monitor", "secret", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing contactId: status = %d, want 400 (body %s)", resp.StatusCode, body)
	}

	_, body = f.do(t, http.MethodPost, "/monitor", "secret", map[string]any{
		"contactId": "555",
		"script":    map[string]any{"keywords": map[string]string{"ping": "pong"}},
	})
	var added struct {
		Success   bool   `json:"success"`
		ContactID string `json:"contactId"`
	}
	if err := json.Unmarshal(body, &added); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !added.Success || added.ContactID != "555@c.us" {
		t.Fatalf("got %+v", added)
	}

	_, body = f.do(t, http.MethodGet, "/monitor", "secret", nil)
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 1 || list[0].ContactID != "555@c.us" || list[0].CreatedAt == "" {
		t.Fatalf("list = %+v", list)
	}

	// Removal accepts the bare id too.
	_, body = f.do(t, http.MethodDelete, "/monitor/555", "secret", nil)
	var removed struct {
		Success bool   `json:"success"`
		Removed string `json:"removed"`
	}
	if err := json.Unmarshal(body, &removed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !removed.Success || removed.Removed != "555@c.us" {
		t.Fatalf("got %+v", removed)
	}

	resp, body = f.do(t, http.MethodDelete, "/monitor/555", "secret", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double delete: status = %d, want 404", resp.StatusCode)
	}
	var e map[string]string
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e["error"] != "Monitor not found" {
		t.Fatalf("error = %q", e["error"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t, "secret")
	f.state.SetReady(nil)
	f.transport.messages["111@c.us"] = []domain.Message{
		{ID: "false_111@c.us_M1", ChatID: "111@c.us", From: "111@c.us", Body: "project deadline friday", ChatName: domain.StrPtr("Alice")},
		{ID: "false_111@c.us_M2", ChatID: "111@c.us", From: "111@c.us", Body: "lunch?"},
	}

	resp, _ := f.do(t, http.MethodGet, "/search", "secret", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing q: status = %d, want 400", resp.StatusCode)
	}

	_, body := f.do(t, http.MethodGet, "/search?q=deadline", "secret", nil)
	var got []searchResultView
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].ID != "false_111@c.us_M1" || got[0].ChatName == nil || *got[0].ChatName != "Alice" {
		t.Fatalf("got %+v", got)
	}
}
