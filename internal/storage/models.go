package storage

import "time"

// Channel is a channel we have seen on a network.
type Channel struct {
	ID        int64      `db:"id" json:"id"`
	Network   string     `db:"network" json:"network"`
	Name      string     `db:"name" json:"name"`
	Topic     string     `db:"topic" json:"topic"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at"`
}

// Message is one archived line of traffic. Target is a channel name, a nick
// for private messages, or "*" for server status traffic.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	Network   string    `db:"network" json:"network"`
	Target    string    `db:"target" json:"target"`
	Sender    string    `db:"sender" json:"sender"`
	Text      string    `db:"text" json:"text"`
	Kind      string    `db:"kind" json:"kind"` // 'privmsg', 'notice', 'join', 'part', 'status'
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	RawLine   string    `db:"raw_line" json:"raw_line"`
}
