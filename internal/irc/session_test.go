package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matt0x6f/irc-core/internal/proto"
)

func fold(t *testing.T, s *Session, line string) Event {
	t.Helper()
	msg, err := proto.ParseLine(line)
	require.NoError(t, err)
	return s.OnMessage(msg)
}

func TestSessionRosterFolding(t *testing.T) {
	s := NewSession("testnet", "me")

	ev := fold(t, s, ":a!u@h JOIN #r")
	assert.Equal(t, Join{Nick: "a", Channel: "#r"}, ev)
	ev = fold(t, s, ":b!u@h JOIN #r")
	assert.Equal(t, Join{Nick: "b", Channel: "#r"}, ev)
	ev = fold(t, s, ":a!u@h PART #r")
	assert.Equal(t, Part{Nick: "a", Channel: "#r"}, ev)

	state := s.State()
	require.Contains(t, state.Channels, "#r")
	assert.Equal(t, map[string]struct{}{"b": {}}, state.Channels["#r"].Users)
}

func TestSessionWelcome(t *testing.T) {
	s := NewSession("testnet", "me")
	ev := fold(t, s, ":srv 001 me :Welcome to the network")
	assert.Equal(t, Welcome{Text: "Welcome to the network"}, ev)
}

func TestSessionMessages(t *testing.T) {
	s := NewSession("testnet", "me")

	ev := fold(t, s, ":alice!u@h PRIVMSG #go :hello world")
	assert.Equal(t, PrivMsg{From: "alice", Target: "#go", Text: "hello world"}, ev)

	ev = fold(t, s, ":bob!u@h NOTICE me :psst")
	assert.Equal(t, Notice{From: "bob", Target: "me", Text: "psst"}, ev)

	ev = fold(t, s, ":srv 332 me #go :channel topic here")
	assert.Equal(t, Topic{Channel: "#go", Text: "channel topic here"}, ev)
}

func TestSessionUnknownPreservesMessage(t *testing.T) {
	s := NewSession("testnet", "me")
	msg, err := proto.ParseLine(":srv 005 me PREFIX=(ov)@+ :are supported")
	require.NoError(t, err)

	ev := s.OnMessage(msg)
	unknown, ok := ev.(Unknown)
	require.True(t, ok)
	assert.Equal(t, msg, unknown.Message)
}

func TestSessionPartUnknownChannel(t *testing.T) {
	s := NewSession("testnet", "me")
	ev := fold(t, s, ":a!u@h PART #nowhere")
	assert.Equal(t, Part{Nick: "a", Channel: "#nowhere"}, ev)
	assert.Empty(t, s.State().Channels)
}

func TestSessionStateIsSnapshot(t *testing.T) {
	s := NewSession("testnet", "me")
	fold(t, s, ":a!u@h JOIN #r")

	snap := s.State()
	fold(t, s, ":b!u@h JOIN #r")
	assert.Len(t, snap.Channels["#r"].Users, 1)
	assert.Len(t, s.State().Channels["#r"].Users, 2)
}
