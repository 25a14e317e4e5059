package wameow

import (
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func textMessage(text string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(text)}
}

// extractText pulls the visible text out of a message, including media
// captions.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetExtendedTextMessage() != nil && msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetImageMessage() != nil && msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil && msg.GetVideoMessage().GetCaption() != "":
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil && msg.GetDocumentMessage().GetCaption() != "":
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

// extractTicket captures the media download ticket of a message, or nil for
// plain text.
func extractTicket(msg *waE2E.Message) *MediaTicket {
	if msg == nil {
		return nil
	}
	if im := msg.GetImageMessage(); im != nil {
		return &MediaTicket{
			MediaType:     "image",
			Mimetype:      im.GetMimetype(),
			URL:           im.GetURL(),
			DirectPath:    im.GetDirectPath(),
			MediaKey:      im.GetMediaKey(),
			FileSHA256:    im.GetFileSHA256(),
			FileEncSHA256: im.GetFileEncSHA256(),
			FileLength:    im.GetFileLength(),
		}
	}
	if vi := msg.GetVideoMessage(); vi != nil {
		return &MediaTicket{
			MediaType:     "video",
			Mimetype:      vi.GetMimetype(),
			URL:           vi.GetURL(),
			DirectPath:    vi.GetDirectPath(),
			MediaKey:      vi.GetMediaKey(),
			FileSHA256:    vi.GetFileSHA256(),
			FileEncSHA256: vi.GetFileEncSHA256(),
			FileLength:    vi.GetFileLength(),
		}
	}
	if au := msg.GetAudioMessage(); au != nil {
		return &MediaTicket{
			MediaType:     "audio",
			Mimetype:      au.GetMimetype(),
			URL:           au.GetURL(),
			DirectPath:    au.GetDirectPath(),
			MediaKey:      au.GetMediaKey(),
			FileSHA256:    au.GetFileSHA256(),
			FileEncSHA256: au.GetFileEncSHA256(),
			FileLength:    au.GetFileLength(),
		}
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return &MediaTicket{
			MediaType:     "document",
			Mimetype:      doc.GetMimetype(),
			Filename:      doc.GetTitle(),
			URL:           doc.GetURL(),
			DirectPath:    doc.GetDirectPath(),
			MediaKey:      doc.GetMediaKey(),
			FileSHA256:    doc.GetFileSHA256(),
			FileEncSHA256: doc.GetFileEncSHA256(),
			FileLength:    doc.GetFileLength(),
		}
	}
	if st := msg.GetStickerMessage(); st != nil {
		return &MediaTicket{
			MediaType:     "sticker",
			Mimetype:      st.GetMimetype(),
			URL:           st.GetURL(),
			DirectPath:    st.GetDirectPath(),
			MediaKey:      st.GetMediaKey(),
			FileSHA256:    st.GetFileSHA256(),
			FileEncSHA256: st.GetFileEncSHA256(),
			FileLength:    st.GetFileLength(),
		}
	}
	return nil
}

// downloadable adapts a stored ticket to what the transport's media
// downloader expects.
type downloadable struct {
	t *MediaTicket
}

func (t *MediaTicket) downloadable() *downloadable { return &downloadable{t: t} }

func (d *downloadable) GetURL() string           { return d.t.URL }
func (d *downloadable) GetDirectPath() string    { return d.t.DirectPath }
func (d *downloadable) GetMediaKey() []byte      { return d.t.MediaKey }
func (d *downloadable) GetFileLength() uint64    { return d.t.FileLength }
func (d *downloadable) GetFileSHA256() []byte    { return d.t.FileSHA256 }
func (d *downloadable) GetFileEncSHA256() []byte { return d.t.FileEncSHA256 }

func (d *downloadable) GetMediaType() whatsmeow.MediaType {
	switch d.t.MediaType {
	case "video":
		return whatsmeow.MediaVideo
	case "audio":
		return whatsmeow.MediaAudio
	case "document":
		return whatsmeow.MediaDocument
	default:
		return whatsmeow.MediaImage
	}
}
