package irc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matt0x6f/irc-core/internal/events"
	"github.com/matt0x6f/irc-core/internal/logger"
	"github.com/matt0x6f/irc-core/internal/proto"
	"github.com/matt0x6f/irc-core/internal/sasl"
	"github.com/matt0x6f/irc-core/internal/storage"
	"github.com/matt0x6f/irc-core/internal/transport"
	"github.com/matt0x6f/irc-core/internal/validation"
)

// Config describes one network connection.
type Config struct {
	Network  string
	Host     string
	Port     int
	TLS      transport.TLSOptions
	Nick     string
	User     string
	Realname string
	// Mechanism enables SASL during registration when non-nil.
	Mechanism sasl.Mechanism
	AutoJoin  []string
}

// Client drives one IRC connection: it dials, negotiates registration, then
// folds the incoming stream through the session engine, archiving messages
// and publishing events. A single goroutine (Run) owns the read side.
type Client struct {
	cfg     Config
	conn    *transport.Conn
	session *Session
	bus     *events.Bus
	store   *storage.Store

	// OnEvent and OnOutgoing, when set before Run, receive every session
	// event and every outgoing message. This is how the plugin host hooks
	// in without the client depending on it.
	OnEvent    func(Event)
	OnOutgoing func(*proto.Message)

	mu        sync.RWMutex
	connected bool
}

// NewClient creates a client; Connect establishes the connection.
func NewClient(cfg Config, bus *events.Bus, store *storage.Store) *Client {
	return &Client{
		cfg:     cfg,
		session: NewSession(cfg.Network, cfg.Nick),
		bus:     bus,
		store:   store,
	}
}

// Session exposes the session engine for state snapshots.
func (c *Client) Session() *Session {
	return c.session
}

// IsConnected reports whether registration has completed.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Connect dials the server and completes CAP/SASL negotiation. SASL
// mechanisms that bind to the TLS channel pick up the binding material here,
// after the handshake and before registration.
func (c *Client) Connect() error {
	conn, err := transport.Dial(c.cfg.Host, c.cfg.Port, c.cfg.TLS)
	if err != nil {
		return err
	}
	c.conn = conn

	mech := c.cfg.Mechanism
	if binder, ok := mech.(interface{ BindChannel([]byte) }); ok {
		binder.BindChannel(conn.TLSServerEndPoint())
	}

	if err := Negotiate(conn, NegotiateOptions{
		Nick:      c.cfg.Nick,
		User:      c.cfg.User,
		Realname:  c.cfg.Realname,
		Mechanism: mech,
	}); err != nil {
		conn.Close()
		c.bus.Emit(events.Event{
			Type:      EventError,
			Data:      map[string]interface{}{"network": c.cfg.Network, "error": err.Error()},
			Timestamp: time.Now(),
			Source:    events.SourceIRC,
		})
		return fmt.Errorf("negotiation with %s failed: %w", c.cfg.Host, err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	logger.Log.Info().Str("network", c.cfg.Network).Str("host", c.cfg.Host).Msg("Registered with server")
	c.bus.Emit(events.Event{
		Type:      EventConnected,
		Data:      map[string]interface{}{"network": c.cfg.Network},
		Timestamp: time.Now(),
		Source:    events.SourceIRC,
	})

	for _, ch := range c.cfg.AutoJoin {
		if err := c.JoinChannel(ch); err != nil {
			logger.Log.Warn().Err(err).Str("channel", ch).Msg("Auto-join failed")
		}
	}
	return nil
}

// Run reads messages until the connection closes, folding each into a
// session event. It answers PING itself; everything else goes through the
// session engine.
func (c *Client) Run() error {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.bus.Emit(events.Event{
			Type:      EventDisconnected,
			Data:      map[string]interface{}{"network": c.cfg.Network},
			Timestamp: time.Now(),
			Source:    events.SourceIRC,
		})
	}()

	for {
		msg, err := c.conn.NextMessage()
		if err != nil {
			return err
		}
		if msg.Command == "PING" {
			token := lastParam(msg)
			if err := c.conn.SendRaw("PONG :" + token); err != nil {
				return err
			}
			continue
		}
		c.handle(c.session.OnMessage(msg))
	}
}

func (c *Client) handle(ev Event) {
	switch e := ev.(type) {
	case Welcome:
		c.archive("*", "*", e.Text, "status", "")
		c.publish(EventWelcome, map[string]interface{}{"text": e.Text})
	case Join:
		c.store.UpsertChannel(c.cfg.Network, e.Channel)
		c.archive(e.Channel, e.Nick, fmt.Sprintf("%s joined %s", e.Nick, e.Channel), "join", "")
		c.publish(EventUserJoined, map[string]interface{}{"channel": e.Channel, "nick": e.Nick})
	case Part:
		c.archive(e.Channel, e.Nick, fmt.Sprintf("%s left %s", e.Nick, e.Channel), "part", "")
		c.publish(EventUserParted, map[string]interface{}{"channel": e.Channel, "nick": e.Nick})
	case PrivMsg:
		c.archive(e.Target, e.From, e.Text, "privmsg", "")
		c.publish(EventMessageReceived, map[string]interface{}{"target": e.Target, "from": e.From, "text": e.Text})
	case Notice:
		c.archive(e.Target, e.From, e.Text, "notice", "")
		c.publish(EventMessageReceived, map[string]interface{}{"target": e.Target, "from": e.From, "text": e.Text, "notice": true})
	case Topic:
		c.store.SetChannelTopic(c.cfg.Network, e.Channel, e.Text)
		c.publish(EventChannelTopic, map[string]interface{}{"channel": e.Channel, "topic": e.Text})
	case Unknown:
		logger.Log.Debug().Str("command", e.Message.Command).Msg("Unhandled message")
	}
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}

func (c *Client) publish(eventType string, data map[string]interface{}) {
	data["network"] = c.cfg.Network
	c.bus.Emit(events.Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		Source:    events.SourceIRC,
	})
}

func (c *Client) archive(target, sender, text, kind, rawLine string) {
	err := c.store.WriteMessage(storage.Message{
		Network:   c.cfg.Network,
		Target:    target,
		Sender:    sender,
		Text:      text,
		Kind:      kind,
		Timestamp: time.Now(),
		RawLine:   rawLine,
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to archive message")
	}
}

// send serializes, observes and writes one outgoing message.
func (c *Client) send(msg *proto.Message) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}
	if c.OnOutgoing != nil {
		c.OnOutgoing(msg)
	}
	return c.conn.SendMessage(msg)
}

// SendMessage sends a PRIVMSG to a channel or nick.
func (c *Client) SendMessage(target, text string) error {
	msg := &proto.Message{Command: "PRIVMSG", Params: []string{target, text}}
	if err := c.send(msg); err != nil {
		return err
	}
	c.archive(target, c.cfg.Nick, text, "privmsg", strings.TrimRight(msg.Line(), "\r\n"))
	c.publish(EventMessageSent, map[string]interface{}{"target": target, "text": text})
	return nil
}

// SendNotice sends a NOTICE to a channel or nick.
func (c *Client) SendNotice(target, text string) error {
	return c.send(&proto.Message{Command: "NOTICE", Params: []string{target, text}})
}

// JoinChannel joins a channel after validating its name.
func (c *Client) JoinChannel(channel string) error {
	if err := validation.ValidateChannelName(channel); err != nil {
		return fmt.Errorf("invalid channel name: %w", err)
	}
	return c.send(&proto.Message{Command: "JOIN", Params: []string{channel}})
}

// PartChannel leaves a channel.
func (c *Client) PartChannel(channel string) error {
	return c.send(&proto.Message{Command: "PART", Params: []string{channel}})
}

// SendRaw writes a preformatted line to the wire.
func (c *Client) SendRaw(line string) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}
	return c.conn.SendRaw(line)
}

// Close quits and tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if c.connected {
		_ = c.conn.SendRaw("QUIT :leaving")
		c.connected = false
	}
	return c.conn.Close()
}
