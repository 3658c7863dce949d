package irc

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/matt0x6f/irc-core/internal/logger"
	"github.com/matt0x6f/irc-core/internal/proto"
	"github.com/matt0x6f/irc-core/internal/sasl"
	"github.com/matt0x6f/irc-core/internal/transport"
)

// defaultCaps are requested whenever the server offers them; "sasl" is added
// when a mechanism is configured.
var defaultCaps = []string{"server-time", "message-tags"}

// RejectedError reports a SASL failure numeric (904-907) from the server.
type RejectedError struct {
	Code string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("SASL rejected by server (numeric %s)", e.Code)
}

// NegotiateOptions configures registration and capability negotiation.
type NegotiateOptions struct {
	Nick     string
	User     string
	Realname string
	// Mechanism enables SASL when non-nil.
	Mechanism sasl.Mechanism
}

// Negotiate owns the connection until the server welcomes us (numeric 001)
// or SASL fails hard. It sends the registration kickoff, walks the CAP
// LS/REQ/ACK exchange and drives the SASL mechanism through AUTHENTICATE
// frames. On a fatal SASL error a best-effort CAP END is sent to unwedge the
// server before the error is returned.
func Negotiate(conn *transport.Conn, opts NegotiateOptions) error {
	if err := conn.SendRaw(fmt.Sprintf("NICK %s", opts.Nick)); err != nil {
		return err
	}
	if err := conn.SendRaw(fmt.Sprintf("USER %s 0 * :%s", opts.User, opts.Realname)); err != nil {
		return err
	}
	if err := conn.SendRaw("CAP LS 302"); err != nil {
		return err
	}

	want := append([]string{}, defaultCaps...)
	if opts.Mechanism != nil {
		want = append(want, "sasl")
	}

	capInProgress := true
	reqSent := false
	authStarted := false
	offered := make(map[string]struct{})

	capEnd := func() error {
		capInProgress = false
		return conn.SendRaw("CAP END")
	}
	// abort surfaces a fatal SASL error, attempting CAP END first so the
	// server does not hold registration open.
	abort := func(cause error) error {
		if capInProgress {
			if err := capEnd(); err != nil {
				logger.Log.Debug().Err(err).Msg("CAP END after SASL failure did not go out")
			}
		}
		return cause
	}

	for {
		msg, err := conn.NextMessage()
		if err != nil {
			return err
		}

		switch msg.Command {
		case "CAP":
			sub := capSubcommand(msg)
			switch sub {
			case "LS":
				for _, c := range strings.Fields(lastParam(msg)) {
					offered[capName(c)] = struct{}{}
				}
				if capLSContinues(msg) || reqSent {
					continue
				}
				var req []string
				for _, w := range want {
					if _, ok := offered[w]; ok {
						req = append(req, w)
					}
				}
				if len(req) == 0 {
					if err := capEnd(); err != nil {
						return err
					}
					continue
				}
				reqSent = true
				if err := conn.SendRaw("CAP REQ :" + strings.Join(req, " ")); err != nil {
					return err
				}
			case "ACK":
				acked := strings.Fields(lastParam(msg))
				if opts.Mechanism != nil && containsCap(acked, "sasl") {
					authStarted = true
					if err := conn.SendRaw("AUTHENTICATE " + opts.Mechanism.Name()); err != nil {
						return err
					}
					continue
				}
				if err := capEnd(); err != nil {
					return err
				}
			case "NAK":
				logger.Log.Warn().Str("caps", lastParam(msg)).Msg("Server rejected capability request")
				if err := capEnd(); err != nil {
					return err
				}
			}

		case "AUTHENTICATE":
			if !authStarted {
				continue
			}
			payload := param(msg, 0)
			if payload == "+" {
				data, err := opts.Mechanism.Start()
				if err != nil {
					return abort(err)
				}
				if len(data) == 0 {
					if err := conn.SendRaw("AUTHENTICATE +"); err != nil {
						return err
					}
					continue
				}
				if err := conn.SendRaw("AUTHENTICATE " + base64.StdEncoding.EncodeToString(data)); err != nil {
					return err
				}
				continue
			}
			challenge, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				return abort(fmt.Errorf("%w: challenge is not valid base64", sasl.ErrProtocol))
			}
			resp, err := opts.Mechanism.Next(challenge)
			if err != nil {
				return abort(err)
			}
			if len(resp) > 0 {
				if err := conn.SendRaw("AUTHENTICATE " + base64.StdEncoding.EncodeToString(resp)); err != nil {
					return err
				}
			}

		case "900", "903":
			logger.Log.Debug().Str("numeric", msg.Command).Msg("SASL authentication succeeded")
			if capInProgress {
				if err := capEnd(); err != nil {
					return err
				}
			}

		case "904", "905", "906", "907":
			return abort(&RejectedError{Code: msg.Command})

		case "001":
			return nil
		}
	}
}

func capSubcommand(msg *proto.Message) string {
	return param(msg, 1)
}

// capLSContinues reports whether a CAP LS line is a continuation. Per CAP
// 302 the marker is a bare "*" parameter between the subcommand and the
// capability list; the target parameter before the subcommand is "*" too
// during registration and must not count.
func capLSContinues(msg *proto.Message) bool {
	if len(msg.Params) < 3 {
		return false
	}
	for _, p := range msg.Params[2:] {
		if p == "*" {
			return true
		}
	}
	return false
}

// capName strips a capability's =value suffix.
func capName(c string) string {
	if idx := strings.IndexByte(c, '='); idx != -1 {
		return c[:idx]
	}
	return c
}

func containsCap(caps []string, name string) bool {
	for _, c := range caps {
		if capName(c) == name {
			return true
		}
	}
	return false
}
