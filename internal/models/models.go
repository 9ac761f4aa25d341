package models

import (
	"io"
	"time"
)

// MediaKind identifies how a payload is delivered to a chat
type MediaKind string

const (
	KindDocument MediaKind = "document"
	KindPhoto    MediaKind = "photo"
	KindVideo    MediaKind = "video"
	KindAudio    MediaKind = "audio"
)

// Valid reports whether k is one of the supported media kinds
func (k MediaKind) Valid() bool {
	switch k {
	case KindDocument, KindPhoto, KindVideo, KindAudio:
		return true
	}
	return false
}

// FileRecord represents a keyword-tagged file stored in TiDB
type FileRecord struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Keywords    []string  `json:"keywords"`
	Caption     string    `json:"caption,omitempty"`
	Kind        MediaKind `json:"media_kind"`
	AddedBy     int64     `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

// DeliveryCaption is the text shown next to a delivered file
func (f *FileRecord) DeliveryCaption() string {
	if f.Caption != "" {
		return f.Caption
	}
	return f.DisplayName
}

// Message is a free-text or command message sent by a user
type Message struct {
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	FirstName string `json:"first_name,omitempty"`
	Text      string `json:"text"`
}

// Command is a parsed "/name args" message
type Command struct {
	UserID    int64
	ChatID    int64
	FirstName string
	Name      string
	Args      string
}

// Selection is an inline button click carrying callback data
type Selection struct {
	UserID int64  `json:"user_id"`
	ChatID int64  `json:"chat_id"`
	Data   string `json:"data"`
}

// Upload is a media attachment with a keyword caption. Either Payload
// (bytes to store) or PayloadID (an existing reference) is set.
type Upload struct {
	UserID    int64
	ChatID    int64
	Kind      MediaKind
	FileName  string
	Caption   string
	PayloadID string
	Payload   *Payload
}

// Payload holds raw media bytes attached to an upload
type Payload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

// Delivery describes one file to be sent to a chat
type Delivery struct {
	ChatID    int64
	Kind      MediaKind
	PayloadID string
	Caption   string
}

// OutboxMessage is a delivered file waiting to be picked up by the front-end
type OutboxMessage struct {
	Method    string    `json:"method"`
	ChatID    int64     `json:"chat_id"`
	Kind      MediaKind `json:"media_kind"`
	PayloadID string    `json:"payload_id"`
	URL       string    `json:"url,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
