package messenger

import (
	"context"
	"errors"
)

// ErrMessageNotFound is returned by Edit when the target message no longer
// exists or cannot be edited.
var ErrMessageNotFound = errors.New("message not found")

type Button struct {
	Text string `json:"text"`
	Data string `json:"data,omitempty"`
}

// Keyboard is either an inline keyboard attached to the message (buttons
// carry callback data) or a reply keyboard replacing the user's input
// (buttons send their text).
type Keyboard struct {
	Inline bool       `json:"inline"`
	Rows   [][]Button `json:"rows"`
}

type Message struct {
	Text     string    `json:"text"`
	Markdown bool      `json:"markdown,omitempty"`
	Keyboard *Keyboard `json:"keyboard,omitempty"`
}

// Event is one inbound turn. Exactly one of Text or Callback is meaningful:
// Callback is set when a button with callback data was pressed.
type Event struct {
	ChatID     int64  `json:"chat_id"`
	FromID     int64  `json:"from_id"`
	Text       string `json:"text,omitempty"`
	Callback   string `json:"callback,omitempty"`
	IsCallback bool   `json:"is_callback,omitempty"`
}

// Sender is the outbound side of a chat transport.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
	// Username resolves a chat's public handle for display, without the "@".
	Username(ctx context.Context, chatID int64) (string, error)
}

// Messenger is a full chat transport.
type Messenger interface {
	Sender
	// Events streams inbound turns until ctx is done.
	Events(ctx context.Context) (<-chan Event, error)
}
