package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "archive.db"), 16, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndReadMessages(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := s.WriteMessageSync(Message{
			Network:   "testnet",
			Target:    "#go",
			Sender:    "alice",
			Text:      fmt.Sprintf("message %d", i),
			Kind:      "privmsg",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	msgs, err := s.Messages("testnet", "#go", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "message 0", msgs[0].Text)
	assert.Equal(t, "message 2", msgs[2].Text)
}

func TestMessagesLimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.WriteMessageSync(Message{
			Network:   "testnet",
			Target:    "#go",
			Sender:    "alice",
			Text:      fmt.Sprintf("m%d", i),
			Kind:      "privmsg",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := s.Messages("testnet", "#go", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].Text)
	assert.Equal(t, "m4", msgs[1].Text)
}

func TestBufferedWritesFlush(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteMessage(Message{
		Network: "testnet", Target: "*", Sender: "*",
		Text: "buffered", Kind: "status", Timestamp: time.Now(),
	}))

	require.Eventually(t, func() bool {
		msgs, err := s.Messages("testnet", "*", 10)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestChannels(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertChannel("testnet", "#go"))
	require.NoError(t, s.UpsertChannel("testnet", "#go")) // idempotent
	require.NoError(t, s.SetChannelTopic("testnet", "#go", "all things go"))
	require.NoError(t, s.SetChannelTopic("testnet", "#irc", "fresh channel"))

	chs, err := s.Channels("testnet")
	require.NoError(t, err)
	require.Len(t, chs, 2)
	assert.Equal(t, "#go", chs[0].Name)
	assert.Equal(t, "all things go", chs[0].Topic)
	assert.Equal(t, "#irc", chs[1].Name)
}

func TestWriteAfterCloseFails(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "a.db"), 4, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.WriteMessage(Message{Network: "n", Target: "*", Sender: "*", Kind: "status", Timestamp: time.Now()})
	assert.Error(t, err)
}
