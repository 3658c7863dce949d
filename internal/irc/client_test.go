package irc

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matt0x6f/irc-core/internal/events"
	"github.com/matt0x6f/irc-core/internal/storage"
	"github.com/matt0x6f/irc-core/internal/transport"
)

func newTestClient(t *testing.T, port int) (*Client, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "archive.db"), 16, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := NewClient(Config{
		Network:  "testnet",
		Host:     "127.0.0.1",
		Port:     port,
		Nick:     "me",
		User:     "me",
		Realname: "integration test",
	}, events.NewBus(), store)
	t.Cleanup(func() { client.Close() })
	return client, store
}

func TestClientConnectAndRun(t *testing.T) {
	srv := startFakeServer(t, func(s *fakeServer, conn net.Conn, r *bufio.Reader) {
		s.expect(r, "CAP LS 302")
		s.send(conn, ":srv CAP * LS :away-notify")
		s.expect(r, "CAP END")
		s.send(conn, ":srv 001 me :Welcome to testnet")
		s.send(conn, "PING :keepalive")
		s.expect(r, "PONG :keepalive")
		s.send(conn, ":alice!u@h JOIN #go")
		s.send(conn, ":alice!u@h PRIVMSG #go :hi me")
		// Closing the connection ends the run loop.
	})

	addr := srv.ln.Addr().(*net.TCPAddr)
	client, store := newTestClient(t, addr.Port)

	var seen []Event
	client.OnEvent = func(ev Event) { seen = append(seen, ev) }

	require.NoError(t, client.Connect())
	assert.True(t, client.IsConnected())

	err := client.Run()
	require.ErrorIs(t, err, transport.ErrConnectionClosed)
	assert.False(t, client.IsConnected())

	srv.finish(t)

	// The session saw the welcome, the join and the message, in order.
	require.Len(t, seen, 3)
	assert.Equal(t, Welcome{Text: "Welcome to testnet"}, seen[0])
	assert.Equal(t, Join{Nick: "alice", Channel: "#go"}, seen[1])
	assert.Equal(t, PrivMsg{From: "alice", Target: "#go", Text: "hi me"}, seen[2])

	state := client.Session().State()
	require.Contains(t, state.Channels, "#go")
	assert.Contains(t, state.Channels["#go"].Users, "alice")

	// The message was archived.
	require.Eventually(t, func() bool {
		msgs, err := store.Messages("testnet", "#go", 10)
		if err != nil {
			return false
		}
		for _, m := range msgs {
			if m.Kind == "privmsg" && m.Text == "hi me" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClientSendMessage(t *testing.T) {
	srv := startFakeServer(t, func(s *fakeServer, conn net.Conn, r *bufio.Reader) {
		s.expect(r, "CAP LS 302")
		s.send(conn, ":srv CAP * LS :away-notify")
		s.expect(r, "CAP END")
		s.send(conn, ":srv 001 me :Welcome")
		s.expect(r, "PRIVMSG #go :hello there")
	})

	addr := srv.ln.Addr().(*net.TCPAddr)
	client, _ := newTestClient(t, addr.Port)

	require.NoError(t, client.Connect())
	require.NoError(t, client.SendMessage("#go", "hello there"))
	srv.finish(t)
}

func TestClientRejectsBadChannelName(t *testing.T) {
	srv := startFakeServer(t, func(s *fakeServer, conn net.Conn, r *bufio.Reader) {
		s.expect(r, "CAP LS 302")
		s.send(conn, ":srv CAP * LS :away-notify")
		s.expect(r, "CAP END")
		s.send(conn, ":srv 001 me :Welcome")
	})

	addr := srv.ln.Addr().(*net.TCPAddr)
	client, _ := newTestClient(t, addr.Port)
	require.NoError(t, client.Connect())

	assert.Error(t, client.JoinChannel("no-prefix"))
	srv.finish(t)
}

func TestClientSendWhileDisconnected(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "a.db"), 4, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := NewClient(Config{Network: "n", Host: "127.0.0.1", Port: 1, Nick: "me"}, events.NewBus(), store)
	assert.Error(t, client.SendMessage("#go", "nope"))
}
