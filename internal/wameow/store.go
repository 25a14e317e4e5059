package wameow

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ChatRecord is one conversation row in the local history database.
type ChatRecord struct {
	JID             string
	Name            string
	IsGroup         bool
	UnreadCount     int
	LastMessageTime time.Time
	LastMessageBody string
	LastMessageFrom bool
	HasLastMessage  bool
}

// MessageRecord is one stored message row.
type MessageRecord struct {
	ID        string
	ChatJID   string
	Sender    string
	Author    string
	Body      string
	Timestamp time.Time
	FromMe    bool
	MediaType string
	Filename  string
}

// MediaTicket carries everything needed to decrypt and fetch a media blob
// from the transport's CDN after the fact.
type MediaTicket struct {
	MediaType     string
	Mimetype      string
	Filename      string
	URL           string
	DirectPath    string
	MediaKey      []byte
	FileSHA256    []byte
	FileEncSHA256 []byte
	FileLength    uint64
}

// Store keeps a local copy of chats and messages. The transport itself has
// no queryable history, so listing, fetching and searching all run against
// this database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the history database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			jid TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			is_group BOOLEAN NOT NULL DEFAULT 0,
			unread_count INTEGER NOT NULL DEFAULT 0,
			last_message_time INTEGER NOT NULL DEFAULT 0,
			last_message_body TEXT NOT NULL DEFAULT '',
			last_message_from_me BOOLEAN NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT,
			chat_jid TEXT,
			sender TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL,
			from_me BOOLEAN NOT NULL DEFAULT 0,
			media_type TEXT NOT NULL DEFAULT '',
			mimetype TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			direct_path TEXT NOT NULL DEFAULT '',
			media_key BLOB,
			file_sha256 BLOB,
			file_enc_sha256 BLOB,
			file_length INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (id, chat_jid),
			FOREIGN KEY (chat_jid) REFERENCES chats(jid)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages(chat_jid, timestamp)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertChat records chat metadata and bumps the preview columns. Inbound
// messages increment the unread counter; outbound ones reset it.
func (s *Store) UpsertChat(jid, name string, isGroup bool, msg MessageRecord) error {
	unreadDelta := 1
	if msg.FromMe {
		unreadDelta = 0
	}
	_, err := s.db.Exec(`
		INSERT INTO chats (jid, name, is_group, unread_count, last_message_time, last_message_body, last_message_from_me)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE name END,
			is_group = excluded.is_group,
			unread_count = CASE WHEN excluded.last_message_from_me THEN 0 ELSE unread_count + ? END,
			last_message_time = excluded.last_message_time,
			last_message_body = excluded.last_message_body,
			last_message_from_me = excluded.last_message_from_me
	`, jid, name, isGroup, unreadDelta, msg.Timestamp.Unix(), msg.Body, msg.FromMe, unreadDelta)
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

// SaveMessage stores one message (and its media ticket, when present).
func (s *Store) SaveMessage(msg MessageRecord, ticket *MediaTicket) error {
	var (
		mediaType, mimetype, filename, url, directPath string
		mediaKey, fileSHA256, fileEncSHA256            []byte
		fileLength                                     uint64
	)
	if ticket != nil {
		mediaType = ticket.MediaType
		mimetype = ticket.Mimetype
		filename = ticket.Filename
		url = ticket.URL
		directPath = ticket.DirectPath
		mediaKey = ticket.MediaKey
		fileSHA256 = ticket.FileSHA256
		fileEncSHA256 = ticket.FileEncSHA256
		fileLength = ticket.FileLength
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO messages
		(id, chat_jid, sender, author, body, timestamp, from_me,
		 media_type, mimetype, filename, url, direct_path,
		 media_key, file_sha256, file_enc_sha256, file_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatJID, msg.Sender, msg.Author, msg.Body, msg.Timestamp.Unix(), msg.FromMe,
		mediaType, mimetype, filename, url, directPath,
		mediaKey, fileSHA256, fileEncSHA256, fileLength)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// Chats returns every known chat, most recently active first.
func (s *Store) Chats() ([]ChatRecord, error) {
	rows, err := s.db.Query(`
		SELECT jid, name, is_group, unread_count, last_message_time, last_message_body, last_message_from_me
		FROM chats
		ORDER BY last_message_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []ChatRecord
	for rows.Next() {
		var c ChatRecord
		var ts int64
		if err := rows.Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount, &ts, &c.LastMessageBody, &c.LastMessageFrom); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		c.LastMessageTime = time.Unix(ts, 0)
		c.HasLastMessage = ts != 0
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ChatByJID returns one chat, or nil when unknown.
func (s *Store) ChatByJID(jid string) (*ChatRecord, error) {
	row := s.db.QueryRow(`
		SELECT jid, name, is_group, unread_count, last_message_time, last_message_body, last_message_from_me
		FROM chats
		WHERE jid = ?
	`, jid)

	var c ChatRecord
	var ts int64
	err := row.Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount, &ts, &c.LastMessageBody, &c.LastMessageFrom)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}
	c.LastMessageTime = time.Unix(ts, 0)
	c.HasLastMessage = ts != 0
	return &c, nil
}

// RenameChat updates the display name of a chat.
func (s *Store) RenameChat(jid, name string) error {
	_, err := s.db.Exec(`UPDATE chats SET name = ? WHERE jid = ?`, name, jid)
	if err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}
	return nil
}

// ClearUnread resets the unread counter after a read.
func (s *Store) ClearUnread(jid string) error {
	_, err := s.db.Exec(`UPDATE chats SET unread_count = 0 WHERE jid = ?`, jid)
	if err != nil {
		return fmt.Errorf("failed to clear unread: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit messages of a chat in
// chronological order.
func (s *Store) RecentMessages(chatJID string, limit int) ([]MessageRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_jid, sender, author, body, timestamp, from_me, media_type, filename
		FROM messages
		WHERE chat_jid = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, chatJID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from the query, oldest-first for callers.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SearchMessages finds messages whose body contains the query,
// case-insensitively, newest first. An empty chatJID searches every chat.
func (s *Store) SearchMessages(query, chatJID string, limit int) ([]MessageRecord, error) {
	pattern := "%" + escapeLike(query) + "%"
	var (
		rows *sql.Rows
		err  error
	)
	if chatJID != "" {
		rows, err = s.db.Query(`
			SELECT id, chat_jid, sender, author, body, timestamp, from_me, media_type, filename
			FROM messages
			WHERE chat_jid = ? AND body LIKE ? ESCAPE '\'
			ORDER BY timestamp DESC
			LIMIT ?
		`, chatJID, pattern, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, chat_jid, sender, author, body, timestamp, from_me, media_type, filename
			FROM messages
			WHERE body LIKE ? ESCAPE '\'
			ORDER BY timestamp DESC
			LIMIT ?
		`, pattern, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Ticket returns the stored media ticket for one message, or nil when the
// message carried no media.
func (s *Store) Ticket(chatJID, messageID string) (*MediaTicket, error) {
	row := s.db.QueryRow(`
		SELECT media_type, mimetype, filename, url, direct_path, media_key, file_sha256, file_enc_sha256, file_length
		FROM messages
		WHERE chat_jid = ? AND id = ?
	`, chatJID, messageID)

	var t MediaTicket
	err := row.Scan(&t.MediaType, &t.Mimetype, &t.Filename, &t.URL, &t.DirectPath,
		&t.MediaKey, &t.FileSHA256, &t.FileEncSHA256, &t.FileLength)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ticket: %w", err)
	}
	if t.MediaType == "" {
		return nil, nil
	}
	return &t, nil
}

func scanMessages(rows *sql.Rows) ([]MessageRecord, error) {
	var msgs []MessageRecord
	for rows.Next() {
		var m MessageRecord
		var ts int64
		if err := rows.Scan(&m.ID, &m.ChatJID, &m.Sender, &m.Author, &m.Body, &ts, &m.FromMe, &m.MediaType, &m.Filename); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
