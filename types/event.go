package types

import "io"

// EventKind is the shape of an inbound chat event.
type EventKind string

const (
	EventText     EventKind = "text"
	EventCommand  EventKind = "command"
	EventDocument EventKind = "document"
	EventPhoto    EventKind = "photo"
	EventCallback EventKind = "callback"
)

// Event is one inbound message from the chat transport.
type Event struct {
	UserID   int64     `json:"userId"`
	Kind     EventKind `json:"kind"`
	Text     string    `json:"text,omitempty"`     // message text, command name or callback data
	FileName string    `json:"fileName,omitempty"` // declared name of an attached document
	FileURL  string    `json:"fileUrl,omitempty"`  // where the transport serves the attachment

	// File is the attachment body when the transport pushes bytes inline.
	File io.Reader `json:"-"`
}

// HasFile reports whether the event carries an attachment.
func (e *Event) HasFile() bool {
	return e.Kind == EventDocument || e.Kind == EventPhoto
}

// Button is one inline keyboard button.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Reply is one outbound message.
type Reply struct {
	UserID   int64      `json:"userId"`
	Text     string     `json:"text"`
	Buttons  [][]Button `json:"buttons,omitempty"`
	Document string     `json:"document,omitempty"` // download link of a delivered artifact
}

// EventResponse is the webhook response body.
type EventResponse struct {
	Stage   string  `json:"stage"`
	Replies []Reply `json:"replies"`
}
