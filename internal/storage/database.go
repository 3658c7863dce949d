package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/matt0x6f/irc-core/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Store archives messages and channel metadata. Message writes go through a
// bounded buffer flushed in the background; when the buffer is full the
// caller writes synchronously. Channel writes are always synchronous.
type Store struct {
	db            *sqlx.DB
	writeBuffer   chan Message
	flushInterval time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   bool
	closedMu sync.RWMutex
}

// NewStore opens (creating if needed) the archive database at path.
func NewStore(path string, bufferSize int, flushInterval time.Duration) (*Store, error) {
	// WAL mode keeps the background flusher from blocking readers.
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s := &Store{
		db:            db,
		writeBuffer:   make(chan Message, bufferSize),
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushLoop()
	return s, nil
}

// Close flushes buffered messages and closes the database.
func (s *Store) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.drain()
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

func (s *Store) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

// drain writes everything currently buffered.
func (s *Store) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case msg := <-s.writeBuffer:
			if err := s.insertMessage(msg); err != nil {
				logger.Log.Error().Err(err).Msg("Failed to flush buffered message")
			}
		default:
			return
		}
	}
}

func (s *Store) insertMessage(msg Message) error {
	_, err := s.db.NamedExec(`
		INSERT INTO messages (network, target, sender, text, kind, timestamp, raw_line)
		VALUES (:network, :target, :sender, :text, :kind, :timestamp, :raw_line)`, msg)
	return err
}

// WriteMessage queues a message for the background flusher. When the buffer
// is full the message is written synchronously instead of being dropped.
func (s *Store) WriteMessage(msg Message) error {
	if s.isClosed() {
		return fmt.Errorf("store is closed")
	}
	select {
	case s.writeBuffer <- msg:
		return nil
	default:
		return s.WriteMessageSync(msg)
	}
}

// WriteMessageSync writes a message immediately.
func (s *Store) WriteMessageSync(msg Message) error {
	if s.isClosed() {
		return fmt.Errorf("store is closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertMessage(msg)
}

// Messages returns the most recent messages for a target, oldest first.
func (s *Store) Messages(network, target string, limit int) ([]Message, error) {
	var msgs []Message
	err := s.db.Select(&msgs, `
		SELECT * FROM (
			SELECT * FROM messages WHERE network = ? AND target = ?
			ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`, network, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return msgs, nil
}

// UpsertChannel records a channel, keeping the existing row when present.
func (s *Store) UpsertChannel(network, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO channels (network, name, topic, created_at)
		VALUES (?, ?, '', ?)
		ON CONFLICT(network, name) DO NOTHING`, network, name, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}
	return nil
}

// SetChannelTopic stores a channel's topic, creating the row if needed.
func (s *Store) SetChannelTopic(network, name, topic string) error {
	if err := s.UpsertChannel(network, name); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		UPDATE channels SET topic = ?, updated_at = ? WHERE network = ? AND name = ?`,
		topic, time.Now(), network, name)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}
	return nil
}

// Channels lists the channels recorded for a network.
func (s *Store) Channels(network string) ([]Channel, error) {
	var chs []Channel
	err := s.db.Select(&chs, `SELECT * FROM channels WHERE network = ? ORDER BY name`, network)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	return chs, nil
}
