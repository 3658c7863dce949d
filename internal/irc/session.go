package irc

import (
	"sync"

	"github.com/matt0x6f/irc-core/internal/proto"
)

// Event is a semantic event folded out of the incoming message stream.
type Event interface {
	isEvent()
}

// Welcome is emitted on numeric 001.
type Welcome struct {
	Text string
}

// Join is emitted when a user joins a channel.
type Join struct {
	Nick    string
	Channel string
}

// Part is emitted when a user leaves a channel.
type Part struct {
	Nick    string
	Channel string
}

// PrivMsg is a PRIVMSG delivered to a channel or to us.
type PrivMsg struct {
	From   string
	Target string
	Text   string
}

// Notice is a NOTICE delivered to a channel or to us.
type Notice struct {
	From   string
	Target string
	Text   string
}

// Topic is emitted on numeric 332.
type Topic struct {
	Channel string
	Text    string
}

// Unknown preserves any message the session does not interpret.
type Unknown struct {
	Message *proto.Message
}

func (Welcome) isEvent() {}
func (Join) isEvent()    {}
func (Part) isEvent()    {}
func (PrivMsg) isEvent() {}
func (Notice) isEvent()  {}
func (Topic) isEvent()   {}
func (Unknown) isEvent() {}

// Channel is one channel's roster.
type Channel struct {
	Name  string
	Users map[string]struct{}
}

// ServerState is the session's view of one network: who we are and which
// channels we track.
type ServerState struct {
	Network  string
	Nick     string
	Channels map[string]Channel
}

// Session folds parsed messages into events and maintains ServerState. The
// reader goroutine is the single writer; State may be called from anywhere
// and returns a consistent snapshot.
type Session struct {
	mu    sync.RWMutex
	state ServerState
}

// NewSession creates a session for the given network label and nick.
func NewSession(network, nick string) *Session {
	return &Session{
		state: ServerState{
			Network:  network,
			Nick:     nick,
			Channels: make(map[string]Channel),
		},
	}
}

// State returns a deep copy of the current server state.
func (s *Session) State() ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := ServerState{
		Network:  s.state.Network,
		Nick:     s.state.Nick,
		Channels: make(map[string]Channel, len(s.state.Channels)),
	}
	for name, ch := range s.state.Channels {
		users := make(map[string]struct{}, len(ch.Users))
		for u := range ch.Users {
			users[u] = struct{}{}
		}
		snapshot.Channels[name] = Channel{Name: ch.Name, Users: users}
	}
	return snapshot
}

// OnMessage turns one message into its semantic event, updating the roster
// for JOIN and PART. It never fails; unrecognized messages come back as
// Unknown.
func (s *Session) OnMessage(msg *proto.Message) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Command {
	case "001":
		return Welcome{Text: param(msg, 1)}
	case "JOIN":
		nick := senderNick(msg)
		channel := lastParam(msg)
		ch, ok := s.state.Channels[channel]
		if !ok {
			ch = Channel{Name: channel, Users: make(map[string]struct{})}
			s.state.Channels[channel] = ch
		}
		ch.Users[nick] = struct{}{}
		return Join{Nick: nick, Channel: channel}
	case "PART":
		nick := senderNick(msg)
		channel := param(msg, 0)
		if ch, ok := s.state.Channels[channel]; ok {
			delete(ch.Users, nick)
		}
		return Part{Nick: nick, Channel: channel}
	case "PRIVMSG":
		return PrivMsg{From: senderNick(msg), Target: param(msg, 0), Text: param(msg, 1)}
	case "NOTICE":
		return Notice{From: senderNick(msg), Target: param(msg, 0), Text: param(msg, 1)}
	case "332":
		return Topic{Channel: param(msg, 1), Text: param(msg, 2)}
	default:
		return Unknown{Message: msg}
	}
}

func senderNick(msg *proto.Message) string {
	if msg.Prefix == nil {
		return ""
	}
	return msg.Prefix.Nick()
}

func param(msg *proto.Message, i int) string {
	if i < len(msg.Params) {
		return msg.Params[i]
	}
	return ""
}

func lastParam(msg *proto.Message) string {
	if len(msg.Params) == 0 {
		return ""
	}
	return msg.Params[len(msg.Params)-1]
}
