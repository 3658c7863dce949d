// Package plugin hosts in-process extensions that consume session events and
// observe outgoing traffic.
package plugin

import (
	"sync"

	"github.com/matt0x6f/irc-core/internal/irc"
	"github.com/matt0x6f/irc-core/internal/logger"
	"github.com/matt0x6f/irc-core/internal/proto"
)

// Plugin is an extension point. Both methods are called from the connection
// goroutine and must not block.
type Plugin interface {
	Name() string
	OnEvent(ev irc.Event)
	OnOutgoing(msg *proto.Message)
}

// Host fans events and outgoing messages out to registered plugins.
type Host struct {
	mu      sync.RWMutex
	plugins []Plugin
}

// NewHost creates an empty plugin host.
func NewHost() *Host {
	return &Host{}
}

// Register adds a plugin.
func (h *Host) Register(p Plugin) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugins = append(h.plugins, p)
	logger.Log.Debug().Str("plugin", p.Name()).Msg("Registered plugin")
}

// DispatchEvent delivers a session event to every plugin.
func (h *Host) DispatchEvent(ev irc.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.plugins {
		p.OnEvent(ev)
	}
}

// DispatchOutgoing shows an outgoing message to every plugin before it hits
// the wire.
func (h *Host) DispatchOutgoing(msg *proto.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.plugins {
		p.OnOutgoing(msg)
	}
}
