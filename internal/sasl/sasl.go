// Package sasl implements the SASL client mechanisms used during IRC
// registration: PLAIN (RFC 4616), EXTERNAL (RFC 4422) and SCRAM-SHA-256 /
// SCRAM-SHA-512 (RFC 5802 / RFC 7677) with tls-server-end-point channel
// binding (RFC 5929).
package sasl

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds callers dispatch on.
var (
	// ErrProtocol covers malformed or out-of-order server challenges:
	// missing nonce/salt/iterations, a nonce that does not extend ours,
	// invalid base64 in a v= value.
	ErrProtocol = errors.New("sasl: protocol error")

	// ErrServerSignature means the server's final signature did not match
	// the expected value. Security-critical, always fatal.
	ErrServerSignature = errors.New("sasl: server signature mismatch")
)

// Credentials carries the identity material a mechanism authenticates with.
// ChannelBinding is the tls-server-end-point hash of the peer certificate;
// nil on plaintext connections.
type Credentials struct {
	Authzid        string
	Username       string
	Password       string
	ChannelBinding []byte
}

// Mechanism is a client-side SASL mechanism driven by the negotiation loop.
// Start produces the initial response sent after the server's "+" prompt;
// Next consumes a decoded server challenge and produces the reply, or nil
// when the exchange has nothing left to send.
type Mechanism interface {
	Name() string
	Start() ([]byte, error)
	Next(challenge []byte) ([]byte, error)
}

// Plain implements the PLAIN mechanism: a single message of
// authzid NUL username NUL password.
type Plain struct {
	creds Credentials
}

// NewPlain creates a PLAIN mechanism.
func NewPlain(creds Credentials) *Plain {
	return &Plain{creds: creds}
}

func (p *Plain) Name() string { return "PLAIN" }

func (p *Plain) Start() ([]byte, error) {
	payload := fmt.Sprintf("%s\x00%s\x00%s", p.creds.Authzid, p.creds.Username, p.creds.Password)
	return []byte(payload), nil
}

func (p *Plain) Next(challenge []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: unexpected PLAIN challenge", ErrProtocol)
}

// External implements the EXTERNAL mechanism. Authentication happens out of
// band (TLS client certificate); the only payload is the optional authzid.
type External struct {
	authzid string
}

// NewExternal creates an EXTERNAL mechanism.
func NewExternal(authzid string) *External {
	return &External{authzid: authzid}
}

func (e *External) Name() string { return "EXTERNAL" }

func (e *External) Start() ([]byte, error) {
	return []byte(e.authzid), nil
}

func (e *External) Next(challenge []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: unexpected EXTERNAL challenge", ErrProtocol)
}
