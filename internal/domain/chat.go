package domain

// Transport-facing DTOs. These are the projections the adapter hands upward;
// the HTTP layer exposes them (or field subsets) directly.

// Chat is one conversation as the transport sees it.
type Chat struct {
	ID          string
	Name        string
	IsGroup     bool
	UnreadCount int
	Timestamp   int64
	LastMessage *LastMessage
	Group       *GroupMetadata
}

// LastMessage is the most recent message preview attached to a chat.
type LastMessage struct {
	Body   string
	FromMe bool
}

// GroupMetadata is populated for group chats only.
type GroupMetadata struct {
	Description  string
	Participants []Participant
	CreatedAt    int64
}

// Participant is one group member.
type Participant struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// Contact is one address-book entry.
type Contact struct {
	ID          string
	Name        string
	PushName    string
	Number      string
	IsMyContact bool
	IsGroup     bool
}

// DisplayName returns the contact name, falling back to the self-declared
// push name.
func (c Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.PushName
}

// Message is one stored message. ID carries the serialized form
// <fromMe>_<chatID>_<messageID>.
type Message struct {
	ID        string
	ChatID    string
	From      string
	Author    *string
	Body      string
	Timestamp int64
	FromMe    bool
	HasMedia  bool
	Type      string
	ChatName  *string
}

// Media is downloaded message media, base64-encoded.
type Media struct {
	Mimetype string  `json:"mimetype"`
	Data     string  `json:"data"`
	Filename *string `json:"filename"`
}

// SessionInfo describes the authenticated account.
type SessionInfo struct {
	Pushname string `json:"pushname"`
	WID      string `json:"wid"`
	Platform string `json:"platform"`
}

// IncomingMessage is the raw message event emitted by the transport before
// the ingestion pipeline enriches it.
type IncomingMessage struct {
	ID         string
	From       string
	Author     *string
	Body       string
	Type       string
	HasMedia   bool
	FromMe     bool
	NotifyName string
}
