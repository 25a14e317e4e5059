package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/openclaw/wa-bridge/internal/domain"
	"github.com/openclaw/wa-bridge/internal/transport"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	mediaScanLimit   = 50
)

// ============ Connection ============

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": s.state.Status(),
		"info":   s.state.Info(),
	})
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	qr := s.state.QR()
	if qr == "" {
		message := "No QR available yet"
		if s.state.Ready() {
			message = "Already authenticated"
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"qr": nil, "message": message})
		return
	}

	png, err := qrcode.Encode(qr, qrcode.Medium, 256)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"qr":     qr,
		"base64": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

// ============ Event queue ============

func (s *Server) handleEventsDrain(w http.ResponseWriter, r *http.Request) {
	events, err := s.queue.Flush()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEventsPeek(w http.ResponseWriter, r *http.Request) {
	events, err := s.queue.Peek()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// ============ Chats ============

type chatView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	IsGroup     bool             `json:"isGroup"`
	UnreadCount int              `json:"unreadCount"`
	Timestamp   int64            `json:"timestamp"`
	LastMessage *lastMessageView `json:"lastMessage"`
}

type lastMessageView struct {
	Body   string `json:"body"`
	FromMe bool   `json:"fromMe"`
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	chats, err := s.client.GetChats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]chatView, 0, len(chats))
	for _, c := range chats {
		view := chatView{
			ID:          c.ID,
			Name:        c.Name,
			IsGroup:     c.IsGroup,
			UnreadCount: c.UnreadCount,
			Timestamp:   c.Timestamp,
		}
		if c.LastMessage != nil {
			view.LastMessage = &lastMessageView{
				Body:   truncateRunes(c.LastMessage.Body, 100),
				FromMe: c.LastMessage.FromMe,
			}
		}
		views = append(views, view)
	}
	s.writeJSON(w, http.StatusOK, views)
}

type messageView struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	Author    *string `json:"author"`
	Body      string  `json:"body"`
	Timestamp int64   `json:"timestamp"`
	FromMe    bool    `json:"fromMe"`
	HasMedia  bool    `json:"hasMedia"`
	Type      string  `json:"type"`
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	raw := r.PathValue("chatID")
	chatID := domain.NormalizeChatID(raw, domain.IsGroupID(raw))
	limit := parseLimit(r.URL.Query().Get("limit"))

	messages, err := s.client.FetchMessages(r.Context(), chatID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:        m.ID,
			From:      m.From,
			Author:    m.Author,
			Body:      m.Body,
			Timestamp: m.Timestamp,
			FromMe:    m.FromMe,
			HasMedia:  m.HasMedia,
			Type:      m.Type,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

// ============ Contacts ============

type contactView struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Number      string  `json:"number"`
	IsMyContact bool    `json:"isMyContact"`
	IsGroup     bool    `json:"isGroup,omitempty"`
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	contacts, err := s.client.GetContacts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]contactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, contactView{
			ID:          c.ID,
			Name:        domain.StrPtr(c.DisplayName()),
			Number:      c.Number,
			IsMyContact: c.IsMyContact,
			IsGroup:     c.IsGroup,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleContactsSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	q := strings.ToLower(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter q")
		return
	}
	contacts, err := s.client.GetContacts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := []contactView{}
	for _, c := range contacts {
		if !strings.Contains(strings.ToLower(c.DisplayName()), q) {
			continue
		}
		views = append(views, contactView{
			ID:          c.ID,
			Name:        domain.StrPtr(c.DisplayName()),
			Number:      c.Number,
			IsMyContact: c.IsMyContact,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

// ============ Groups ============

type groupView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants *int   `json:"participants,omitempty"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	chats, err := s.client.GetChats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := []groupView{}
	for _, c := range chats {
		if !c.IsGroup {
			continue
		}
		view := groupView{ID: c.ID, Name: c.Name}
		if c.Group != nil && len(c.Group.Participants) > 0 {
			n := len(c.Group.Participants)
			view.Participants = &n
		}
		views = append(views, view)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGroupsSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	q := strings.ToLower(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter q")
		return
	}
	chats, err := s.client.GetChats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := []groupView{}
	for _, c := range chats {
		if !c.IsGroup || !strings.Contains(strings.ToLower(c.Name), q) {
			continue
		}
		views = append(views, groupView{ID: c.ID, Name: c.Name})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGroupInfo(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	gid := domain.NormalizeChatID(r.PathValue("groupID"), true)

	chat, err := s.client.GetChatByID(r.Context(), gid)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !chat.IsGroup {
		s.writeError(w, http.StatusBadRequest, "Not a group chat")
		return
	}

	var description *string
	participants := []domain.Participant{}
	var createdAt *int64
	if chat.Group != nil {
		description = domain.StrPtr(chat.Group.Description)
		if chat.Group.Participants != nil {
			participants = chat.Group.Participants
		}
		if chat.Group.CreatedAt != 0 {
			createdAt = &chat.Group.CreatedAt
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":           chat.ID,
		"name":         chat.Name,
		"description":  description,
		"participants": participants,
		"createdAt":    createdAt,
	})
}

// ============ Messaging ============

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	var body struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil || body.To == "" || body.Message == "" {
		s.writeError(w, http.StatusBadRequest, "Missing required fields: to, message")
		return
	}

	chatID := domain.NormalizeChatID(body.To, false)
	messageID, err := s.client.SendMessage(r.Context(), chatID, body.Message)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": messageID, "to": chatID})
}

func (s *Server) handleSendGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	var body struct {
		GroupID string `json:"groupId"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil || body.GroupID == "" || body.Message == "" {
		s.writeError(w, http.StatusBadRequest, "Missing required fields: groupId, message")
		return
	}

	gid := domain.NormalizeChatID(body.GroupID, true)
	messageID, err := s.client.SendMessage(r.Context(), gid, body.Message)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": messageID, "to": gid})
}

type searchResultView struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	Author    *string `json:"author"`
	Body      string  `json:"body"`
	Timestamp int64   `json:"timestamp"`
	ChatName  *string `json:"chatName"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter q")
		return
	}
	opts := transport.SearchOptions{Limit: parseLimit(r.URL.Query().Get("limit"))}
	if rawChat := r.URL.Query().Get("chatId"); rawChat != "" {
		opts.ChatID = domain.NormalizeChatID(rawChat, domain.IsGroupID(rawChat))
	}

	messages, err := s.client.SearchMessages(r.Context(), q, opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]searchResultView, 0, len(messages))
	for _, m := range messages {
		views = append(views, searchResultView{
			ID:        m.ID,
			From:      m.From,
			Author:    m.Author,
			Body:      m.Body,
			Timestamp: m.Timestamp,
			ChatName:  m.ChatName,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w) {
		return
	}
	serializedID := r.PathValue("messageID")
	parts := strings.Split(serializedID, "_")
	if len(parts) < 3 {
		s.writeError(w, http.StatusBadRequest, "Invalid messageId format")
		return
	}
	chatID := parts[1]

	messages, err := s.client.FetchMessages(r.Context(), chatID, mediaScanLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var found *domain.Message
	for i := range messages {
		if messages[i].ID == serializedID {
			found = &messages[i]
			break
		}
	}
	if found == nil {
		s.writeError(w, http.StatusNotFound, "Message not found in recent messages")
		return
	}
	if !found.HasMedia {
		s.writeError(w, http.StatusBadRequest, "Message has no media")
		return
	}

	media, err := s.client.DownloadMedia(r.Context(), chatID, serializedID)
	if err != nil {
		if errors.Is(err, transport.ErrNoMedia) {
			s.writeError(w, http.StatusBadRequest, "Message has no media")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, media)
}

// ============ Monitors ============

func (s *Server) handleMonitorList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitors.List())
}

func (s *Server) handleMonitorAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID string         `json:"contactId"`
		Script    *domain.Script `json:"script"`
		Webhook   *string        `json:"webhook"`
	}
	if err := decodeBody(r, &body); err != nil || body.ContactID == "" {
		s.writeError(w, http.StatusBadRequest, "Missing required field: contactId")
		return
	}

	nid, err := s.monitors.Add(body.ContactID, domain.MonitorSpec{
		Script:  body.Script,
		Webhook: body.Webhook,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "contactId": nid})
}

func (s *Server) handleMonitorRemove(w http.ResponseWriter, r *http.Request) {
	nid, removed, err := s.monitors.Remove(r.PathValue("contactID"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "Monitor not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": nid})
}

// ============ Helpers ============

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// parseLimit applies the default and the hard cap shared by the listing
// endpoints.
func parseLimit(raw string) int {
	limit := defaultListLimit
	if raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
