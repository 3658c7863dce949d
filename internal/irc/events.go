package irc

// Event types published on the event bus.
const (
	EventConnected       = "connection.established"
	EventDisconnected    = "connection.lost"
	EventWelcome         = "server.welcome"
	EventMessageSent     = "message.sent"
	EventMessageReceived = "message.received"
	EventUserJoined      = "user.joined"
	EventUserParted      = "user.parted"
	EventChannelTopic    = "channel.topic"
	EventError           = "error"
)
