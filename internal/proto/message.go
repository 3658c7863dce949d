package proto

import (
	"errors"
	"strings"
)

// ErrMalformedMessage is returned when a line cannot be parsed as an IRC message.
var ErrMalformedMessage = errors.New("malformed IRC message")

// Tag is a single IRCv3 message tag. Value is nil for key-only tags so that
// "key" and "key=" can be told apart when serializing.
type Tag struct {
	Key   string
	Value *string
}

// Prefix is the raw message source, either a server name or nick!user@host.
type Prefix struct {
	Raw string
}

// Nick returns the prefix truncated at the first '!', or the raw prefix when
// no user/host part is present.
func (p Prefix) Nick() string {
	if idx := strings.IndexByte(p.Raw, '!'); idx != -1 {
		return p.Raw[:idx]
	}
	return p.Raw
}

// Message is a single parsed IRC protocol message with IRCv3 tags.
// Tag order is preserved for round-trip fidelity.
type Message struct {
	Tags    []Tag
	Prefix  *Prefix
	Command string
	Params  []string
}

// Tag returns the value of the named tag and whether the tag is present.
// Key-only tags report present with an empty value.
func (m *Message) Tag(key string) (string, bool) {
	for _, t := range m.Tags {
		if t.Key == key {
			if t.Value == nil {
				return "", true
			}
			return *t.Value, true
		}
	}
	return "", false
}

// Line serializes the message to wire format, terminated with CRLF. The final
// parameter gets a ':' sigil only when it contains a space or is empty.
func (m *Message) Line() string {
	var out strings.Builder
	if len(m.Tags) > 0 {
		out.WriteByte('@')
		for i, t := range m.Tags {
			if i > 0 {
				out.WriteByte(';')
			}
			out.WriteString(t.Key)
			if t.Value != nil {
				out.WriteByte('=')
				out.WriteString(*t.Value)
			}
		}
		out.WriteByte(' ')
	}
	if m.Prefix != nil {
		out.WriteByte(':')
		out.WriteString(m.Prefix.Raw)
		out.WriteByte(' ')
	}
	out.WriteString(m.Command)
	for i, p := range m.Params {
		out.WriteByte(' ')
		if i == len(m.Params)-1 && (strings.ContainsRune(p, ' ') || p == "") {
			out.WriteByte(':')
		}
		out.WriteString(p)
	}
	out.WriteString("\r\n")
	return out.String()
}

// takeUntil splits s at the first occurrence of ch. The separator is consumed.
// When ch is absent the whole string is the head and the tail is empty.
func takeUntil(s string, ch byte) (head, rest string) {
	if idx := strings.IndexByte(s, ch); idx != -1 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// ParseLine parses a single IRC line. Trailing CR/LF is trimmed; runs of
// spaces between tokens collapse. A parameter starting with ':' swallows the
// rest of the line, spaces included.
func ParseLine(line string) (*Message, error) {
	s := strings.TrimRight(line, "\r\n")
	msg := &Message{}

	if strings.HasPrefix(s, "@") {
		var blob string
		blob, s = takeUntil(s[1:], ' ')
		for _, part := range strings.Split(blob, ";") {
			if eq := strings.IndexByte(part, '='); eq != -1 {
				val := part[eq+1:]
				msg.Tags = append(msg.Tags, Tag{Key: part[:eq], Value: &val})
			} else {
				msg.Tags = append(msg.Tags, Tag{Key: part})
			}
		}
	}

	s = strings.TrimLeft(s, " ")
	if strings.HasPrefix(s, ":") {
		var pfx string
		pfx, s = takeUntil(s[1:], ' ')
		msg.Prefix = &Prefix{Raw: pfx}
	}

	s = strings.TrimLeft(s, " ")
	msg.Command, s = takeUntil(s, ' ')
	if msg.Command == "" {
		return nil, ErrMalformedMessage
	}

	for s != "" {
		if strings.HasPrefix(s, ":") {
			msg.Params = append(msg.Params, s[1:])
			break
		}
		var p string
		p, s = takeUntil(s, ' ')
		if p != "" {
			msg.Params = append(msg.Params, p)
		}
	}
	return msg, nil
}
