package domain

import "context"

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is a messaging integration that delivers operator turns to the
// coordinator and renders coordinator messages back.
type Channel interface {
	// ID returns the channel identifier (e.g., "irc").
	ID() string
	// Start connects the channel and begins listening for messages.
	Start(ctx context.Context) error
	// Stop gracefully disconnects the channel.
	Stop(ctx context.Context) error
	// Send delivers an outbound message through this channel.
	Send(ctx context.Context, msg OutboundMessage) error
	// OnMessage registers a handler for inbound messages.
	OnMessage(handler func(msg InboundMessage))
}
