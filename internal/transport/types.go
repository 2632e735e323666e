// Package transport defines the abstract chat-transport surface the core
// talks to: inbound check-in events and outbound summary sends. The
// Telegram implementation lives in the telegram subpackage.
package transport

import "context"

// Message is one inbound chat event. Text carries the message text or,
// for captioned media, the caption.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	SenderID     int64
	SenderIsBot  bool
	SenderHandle string
	SenderName   string
	Text         string
}

// ChatTarget addresses an outbound send.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound half of the transport.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// Adapter is a full transport: a long-running inbound loop plus Sender.
type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}
