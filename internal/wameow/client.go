// Package wameow is the concrete WhatsApp transport. It wraps a whatsmeow
// session, mirrors every message into a local history database, and exposes
// the capability interface the rest of the bridge programs against.
package wameow

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mdp/qrterminal"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/openclaw/wa-bridge/internal/domain"
	"github.com/openclaw/wa-bridge/internal/transport"
)

// reconnectDelay is the fixed wait before a single reconnect attempt after
// an unexpected disconnect.
const reconnectDelay = 5 * time.Second

// Client implements transport.Client on top of whatsmeow.
type Client struct {
	authDir string
	state   *transport.State
	log     zerolog.Logger

	store   *Store
	wm      *whatsmeow.Client
	handler transport.MessageHandler
	limiter *rate.Limiter

	mu           sync.Mutex
	reconnecting bool
}

var _ transport.Client = (*Client)(nil)

// NewClient opens the local history store and prepares a client. The session
// itself is not started until Initialize.
func NewClient(authDir string, state *transport.State, log zerolog.Logger) (*Client, error) {
	store, err := OpenStore(filepath.Join(authDir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return &Client{
		authDir: authDir,
		state:   state,
		log:     log,
		store:   store,
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
	}, nil
}

// OnMessage registers the inbound message handler.
func (c *Client) OnMessage(handler transport.MessageHandler) {
	c.handler = handler
}

// Initialize opens the device store and connects. When no device is linked
// yet the pairing QR is published to the session state and rendered on the
// terminal.
func (c *Client) Initialize(ctx context.Context) error {
	useANSI := term.IsTerminal(int(os.Stdout.Fd()))
	dbLog := waLog.Stdout("Database", "ERROR", useANSI)

	sessionPath := filepath.Join(c.authDir, "session.db")
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+sessionPath+"?_foreign_keys=on", dbLog)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err == sql.ErrNoRows {
		device = container.NewDevice()
	} else if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}

	c.wm = whatsmeow.NewClient(device, waLog.Stdout("Client", "ERROR", useANSI))
	c.wm.AddEventHandler(c.handleEvent)

	if c.wm.Store.ID == nil {
		qrChan, _ := c.wm.GetQRChannel(ctx)
		if err := c.wm.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		go c.pumpQR(qrChan)
		return nil
	}

	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *Client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			c.state.SetQR(evt.Code)
			c.log.Info().Msg("scan the QR code to link this device")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		case "success":
			c.state.SetAuthenticated()
			c.log.Info().Msg("device linked")
			return
		}
	}
}

// Destroy disconnects and closes the history store.
func (c *Client) Destroy() error {
	if c.wm != nil {
		c.wm.Disconnect()
	}
	return c.store.Close()
}

func (c *Client) handleEvent(evt interface{}) {
	ctx := context.Background()
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)

	case *events.Connected:
		info := &domain.SessionInfo{Platform: c.wm.Store.Platform, Pushname: c.wm.Store.PushName}
		if c.wm.Store.ID != nil {
			info.WID = apiID(*c.wm.Store.ID)
		}
		c.state.SetReady(info)
		_ = c.wm.SendPresence(ctx, types.PresenceAvailable)
		c.log.Info().Str("wid", info.WID).Msg("connected")

	case *events.Disconnected:
		c.state.SetDisconnected()
		c.log.Warn().Msg("disconnected")
		c.scheduleReconnect()

	case *events.LoggedOut:
		c.state.SetDisconnected()
		c.log.Warn().Msg("logged out, relink required")
	}
}

// scheduleReconnect arms a single delayed reconnect attempt. Further
// disconnects while one is pending do not stack.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnecting || c.state.ShuttingDown() {
		return
	}
	c.reconnecting = true

	time.AfterFunc(reconnectDelay, func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
		if c.state.ShuttingDown() || c.wm.IsConnected() {
			return
		}
		c.log.Info().Msg("reconnecting")
		if err := c.wm.Connect(); err != nil {
			c.log.Error().Err(err).Msg("reconnect failed")
		}
	})
}

func (c *Client) handleMessage(v *events.Message) {
	chatID := apiID(v.Info.Chat)
	body := extractText(v.Message)
	ticket := extractTicket(v.Message)

	msgType := "chat"
	if ticket != nil {
		msgType = ticket.MediaType
	}

	ts := v.Info.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	rec := MessageRecord{
		ID:        serializeID(v.Info.IsFromMe, chatID, v.Info.ID),
		ChatJID:   chatID,
		Sender:    apiID(v.Info.Sender),
		Body:      body,
		Timestamp: ts,
		FromMe:    v.Info.IsFromMe,
	}
	if v.Info.IsGroup {
		rec.Author = apiID(v.Info.Sender)
	}

	chatName := ""
	if !v.Info.IsGroup && !v.Info.IsFromMe {
		chatName = v.Info.PushName
	}
	if err := c.store.UpsertChat(chatID, chatName, v.Info.IsGroup, rec); err != nil {
		c.log.Error().Err(err).Str("chat", chatID).Msg("failed to record chat")
	}
	if err := c.store.SaveMessage(rec, ticket); err != nil {
		c.log.Error().Err(err).Str("chat", chatID).Msg("failed to record message")
	}
	if v.Info.IsGroup && chatName == "" {
		go c.resolveGroupName(v.Info.Chat)
	}

	if c.handler == nil {
		return
	}
	msg := &domain.IncomingMessage{
		ID:         rec.ID,
		From:       chatID,
		Body:       body,
		Type:       msgType,
		HasMedia:   ticket != nil,
		FromMe:     v.Info.IsFromMe,
		NotifyName: v.Info.PushName,
	}
	if rec.Author != "" {
		msg.Author = &rec.Author
	}
	c.handler(msg)
}

// resolveGroupName fills in the group subject the first time a group is
// seen. Best effort.
func (c *Client) resolveGroupName(jid types.JID) {
	gi, err := c.wm.GetGroupInfo(context.Background(), jid)
	if err != nil || gi.Name == "" {
		return
	}
	if err := c.store.RenameChat(apiID(jid), gi.Name); err != nil {
		c.log.Error().Err(err).Msg("failed to rename chat")
	}
}

// GetChats lists every known chat, most recently active first.
func (c *Client) GetChats(ctx context.Context) ([]domain.Chat, error) {
	recs, err := c.store.Chats()
	if err != nil {
		return nil, err
	}
	chats := make([]domain.Chat, 0, len(recs))
	for _, r := range recs {
		chats = append(chats, chatFromRecord(r))
	}
	return chats, nil
}

// GetChatByID returns one chat. For groups the live metadata (subject,
// description, participants) is fetched from the transport.
func (c *Client) GetChatByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	rec, err := c.store.ChatByJID(chatID)
	if err != nil {
		return nil, err
	}

	var chat domain.Chat
	if rec != nil {
		chat = chatFromRecord(*rec)
	} else if domain.IsGroupID(chatID) {
		chat = domain.Chat{ID: chatID, IsGroup: true}
	} else {
		return nil, transport.ErrNotFound
	}

	if chat.IsGroup {
		jid, err := wireJID(chatID)
		if err != nil {
			return nil, err
		}
		gi, err := c.wm.GetGroupInfo(ctx, jid)
		if err != nil {
			if rec == nil {
				return nil, transport.ErrNotFound
			}
			// Stale metadata beats a hard failure here.
			c.log.Warn().Err(err).Str("chat", chatID).Msg("failed to fetch group info")
			return &chat, nil
		}
		if gi.Name != "" {
			chat.Name = gi.Name
		}
		meta := &domain.GroupMetadata{Description: gi.Topic}
		if !gi.GroupCreated.IsZero() {
			meta.CreatedAt = gi.GroupCreated.Unix()
		}
		for _, p := range gi.Participants {
			meta.Participants = append(meta.Participants, domain.Participant{
				ID:           apiID(p.JID),
				IsAdmin:      p.IsAdmin,
				IsSuperAdmin: p.IsSuperAdmin,
			})
		}
		chat.Group = meta
	}
	return &chat, nil
}

// GetContacts lists the device's address book.
func (c *Client) GetContacts(ctx context.Context) ([]domain.Contact, error) {
	all, err := c.wm.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	contacts := make([]domain.Contact, 0, len(all))
	for jid, info := range all {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		contacts = append(contacts, domain.Contact{
			ID:          apiID(jid),
			Name:        info.FullName,
			PushName:    info.PushName,
			Number:      jid.User,
			IsMyContact: info.FullName != "",
		})
	}
	return contacts, nil
}

// GetContact looks up one address book entry.
func (c *Client) GetContact(ctx context.Context, chatID string) (*domain.Contact, error) {
	jid, err := wireJID(chatID)
	if err != nil {
		return nil, err
	}
	info, err := c.wm.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	if !info.Found {
		return nil, transport.ErrNotFound
	}
	return &domain.Contact{
		ID:          apiID(jid),
		Name:        info.FullName,
		PushName:    info.PushName,
		Number:      jid.User,
		IsMyContact: info.FullName != "",
	}, nil
}

// SearchMessages finds stored messages whose body contains the query.
func (c *Client) SearchMessages(ctx context.Context, query string, opts transport.SearchOptions) ([]domain.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	recs, err := c.store.SearchMessages(query, opts.ChatID, limit)
	if err != nil {
		return nil, err
	}

	names := map[string]*string{}
	msgs := make([]domain.Message, 0, len(recs))
	for _, r := range recs {
		name, ok := names[r.ChatJID]
		if !ok {
			if chat, err := c.store.ChatByJID(r.ChatJID); err == nil && chat != nil {
				name = domain.StrPtr(chat.Name)
			}
			names[r.ChatJID] = name
		}
		m := messageFromRecord(r)
		m.ChatName = name
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SendMessage sends a text message and records it locally. Sends are rate
// limited.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	jid, err := wireJID(chatID)
	if err != nil {
		return "", err
	}

	resp, err := c.wm.SendMessage(ctx, jid, textMessage(text))
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	rec := MessageRecord{
		ID:        serializeID(true, chatID, resp.ID),
		ChatJID:   chatID,
		Sender:    c.selfID(),
		Body:      text,
		Timestamp: resp.Timestamp,
		FromMe:    true,
	}
	if err := c.store.UpsertChat(chatID, "", domain.IsGroupID(chatID), rec); err != nil {
		c.log.Error().Err(err).Str("chat", chatID).Msg("failed to record chat")
	}
	if err := c.store.SaveMessage(rec, nil); err != nil {
		c.log.Error().Err(err).Str("chat", chatID).Msg("failed to record message")
	}
	return rec.ID, nil
}

// FetchMessages returns the newest limit messages of a chat, oldest first,
// and marks the chat read.
func (c *Client) FetchMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	recs, err := c.store.RecentMessages(chatID, limit)
	if err != nil {
		return nil, err
	}
	if err := c.store.ClearUnread(chatID); err != nil {
		c.log.Error().Err(err).Str("chat", chatID).Msg("failed to clear unread")
	}
	msgs := make([]domain.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, messageFromRecord(r))
	}
	return msgs, nil
}

// DownloadMedia fetches and decrypts the media blob of a stored message.
func (c *Client) DownloadMedia(ctx context.Context, chatID, serializedID string) (*domain.Media, error) {
	ticket, err := c.store.Ticket(chatID, serializedID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, transport.ErrNoMedia
	}

	data, err := c.wm.Download(ctx, ticket.downloadable())
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return &domain.Media{
		Mimetype: ticket.Mimetype,
		Data:     base64.StdEncoding.EncodeToString(data),
		Filename: domain.StrPtr(ticket.Filename),
	}, nil
}

func (c *Client) selfID() string {
	if c.wm != nil && c.wm.Store.ID != nil {
		return apiID(*c.wm.Store.ID)
	}
	return ""
}

func chatFromRecord(r ChatRecord) domain.Chat {
	name := r.Name
	if name == "" {
		name = r.JID
	}
	chat := domain.Chat{
		ID:          r.JID,
		Name:        name,
		IsGroup:     r.IsGroup,
		UnreadCount: r.UnreadCount,
		Timestamp:   r.LastMessageTime.Unix(),
	}
	if r.HasLastMessage {
		chat.LastMessage = &domain.LastMessage{Body: r.LastMessageBody, FromMe: r.LastMessageFrom}
	}
	return chat
}

func messageFromRecord(r MessageRecord) domain.Message {
	m := domain.Message{
		ID:        r.ID,
		ChatID:    r.ChatJID,
		From:      r.ChatJID,
		Body:      r.Body,
		Timestamp: r.Timestamp.Unix(),
		FromMe:    r.FromMe,
		HasMedia:  r.MediaType != "",
		Type:      "chat",
	}
	if r.MediaType != "" {
		m.Type = r.MediaType
	}
	if r.Author != "" {
		author := r.Author
		m.Author = &author
	}
	return m
}
