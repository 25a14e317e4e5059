package wameow

import (
	"testing"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{
			"extended text wins",
			&waE2E.Message{
				Conversation:        proto.String("plain"),
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked")},
			},
			"linked",
		},
		{
			"image caption",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look")}},
			"look",
		},
		{
			"captionless image",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/jpeg")}},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(tt.msg); got != tt.want {
				t.Fatalf("extractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTicket(t *testing.T) {
	if extractTicket(&waE2E.Message{Conversation: proto.String("hi")}) != nil {
		t.Fatal("text message produced a ticket")
	}

	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Mimetype:   proto.String("application/pdf"),
		Title:      proto.String("report.pdf"),
		URL:        proto.String("https://mmg.example/doc"),
		DirectPath: proto.String("/v/doc"),
		MediaKey:   []byte{1},
		FileLength: proto.Uint64(99),
	}}
	ticket := extractTicket(msg)
	if ticket == nil || ticket.MediaType != "document" || ticket.Filename != "report.pdf" {
		t.Fatalf("ticket = %+v", ticket)
	}
	if ticket.downloadable().GetMediaType() != whatsmeow.MediaDocument {
		t.Fatalf("media type mapping wrong")
	}
	if ticket.downloadable().GetFileLength() != 99 {
		t.Fatalf("file length lost")
	}
}
