// Package history defines the chat message model shared by message sources,
// the archive sink and the export renderers.
package history

import (
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PhotoSizeEstimate is used for photos whose size is unknown.
const PhotoSizeEstimate int64 = 512 * 1024

// MediaKind identifies the kind of attachment carried by a message.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaVideo    MediaKind = "video"
	MediaVoice    MediaKind = "voice"
	MediaSticker  MediaKind = "sticker"
)

// Media describes an attachment. Size is zero when unknown.
type Media struct {
	Kind MediaKind `json:"kind"`
	Path string    `json:"path,omitempty"`
	Size int64     `json:"size,omitempty"`
	Mime string    `json:"mime,omitempty"`
}

// Message is a single chat message.
type Message struct {
	ID        int64     `json:"message_id"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Text      string    `json:"text"`
	HTML      string    `json:"html,omitempty"` // formatted body, when the source has one
	Date      time.Time `json:"date"`
	Type      string    `json:"message_type,omitempty"`
	ReplyTo   int64     `json:"reply_to,omitempty"`
	Media     *Media    `json:"media,omitempty"`
}

// HasMedia reports whether the message carries an attachment.
func (m Message) HasMedia() bool {
	return m.Media != nil && m.Media.Kind != MediaNone
}

// Sender returns a display name for the author.
func (m Message) Sender() string {
	switch {
	case m.FirstName != "" && m.LastName != "":
		return m.FirstName + " " + m.LastName
	case m.FirstName != "":
		return m.FirstName
	case m.Username != "":
		return "@" + m.Username
	case m.UserID != 0:
		return "user" + strconv.FormatInt(m.UserID, 10)
	default:
		return "Unknown"
	}
}

// NormalizedText returns the text in Unicode NFC form.
func (m Message) NormalizedText() string {
	return norm.NFC.String(m.Text)
}

// TextBytes is the UTF-8 byte length of the normalized text.
func (m Message) TextBytes() int64 {
	return int64(len(m.NormalizedText()))
}

// TextLength is the number of characters in the text.
func (m Message) TextLength() int {
	return utf8.RuneCountInString(m.Text)
}

// MediaBytes returns the exact attachment size for file-backed media and an
// estimate for photos of unknown size.
func (m Message) MediaBytes() int64 {
	if !m.HasMedia() {
		return 0
	}
	if m.Media.Size > 0 {
		return m.Media.Size
	}
	if m.Media.Kind == MediaPhoto {
		return PhotoSizeEstimate
	}
	return 0
}

// Cursor positions inside a chat history. Any positive value is the ID of the
// last processed message; older messages have smaller IDs.
const (
	CursorStart     int64 = 0
	CursorExhausted int64 = -1
)

// ChatInfo is what a source knows locally about a chat.
type ChatInfo struct {
	ID           int64  `json:"chat_id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"` // 0 when unknown
}
