package domain

import "time"

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser        Role = "user"
	RoleCoordinator Role = "coordinator"
)

// Message is one immutable transcript entry.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Options   []string  `json:"options,omitempty"` // quick replies, re-submitted verbatim when chosen
}

// Clone returns a copy of m that shares no mutable state.
func (m Message) Clone() Message {
	if m.Options != nil {
		m.Options = append([]string(nil), m.Options...)
	}
	return m
}

// ChatType classifies the conversation context on a channel.
type ChatType string

const (
	ChatTypeDM    ChatType = "dm"
	ChatTypeGroup ChatType = "group"
)

// InboundMessage is raw text received from a channel.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	ChatID    string    `json:"chatId"`
	ChatType  ChatType  `json:"chatType"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is text to be delivered through a channel.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Body      string `json:"body"`
}
