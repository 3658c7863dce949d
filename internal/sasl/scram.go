package sasl

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAM implements SCRAM-SHA-256 and SCRAM-SHA-512 with optional
// tls-server-end-point channel binding. The zero value is not usable; build
// instances with NewSCRAMSHA256 or NewSCRAMSHA512.
type SCRAM struct {
	creds   Credentials
	name    string
	newHash func() hash.Hash

	clientNonce     string
	clientFirstBare string
	gs2Header       string
	authMessage     string
	expectedSig     []byte
}

// NewSCRAMSHA256 creates a SCRAM-SHA-256 mechanism.
func NewSCRAMSHA256(creds Credentials) *SCRAM {
	return &SCRAM{creds: creds, name: "SCRAM-SHA-256", newHash: sha256.New}
}

// NewSCRAMSHA512 creates a SCRAM-SHA-512 mechanism.
func NewSCRAMSHA512(creds Credentials) *SCRAM {
	return &SCRAM{creds: creds, name: "SCRAM-SHA-512", newHash: sha512.New}
}

func (s *SCRAM) Name() string { return s.name }

// BindChannel installs the tls-server-end-point material once the TLS
// handshake has produced it. Must be called before Start.
func (s *SCRAM) BindChannel(material []byte) {
	s.creds.ChannelBinding = material
}

// Start composes the client-first message: the GS2 header advertising
// channel binding, then n=<saslname>,r=<client nonce>.
func (s *SCRAM) Start() ([]byte, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, err
	}
	s.clientNonce = nonce
	if s.creds.ChannelBinding != nil {
		s.gs2Header = "p=tls-server-end-point,,"
	} else {
		s.gs2Header = "n,,"
	}
	s.clientFirstBare = fmt.Sprintf("n=%s,r=%s", saslname(s.creds.Username), s.clientNonce)
	return []byte(s.gs2Header + s.clientFirstBare), nil
}

// Next processes a decoded server challenge. A challenge carrying v= is the
// server-final message and is verified against the signature computed when
// the client proof was sent; anything else is treated as server-first.
func (s *SCRAM) Next(challenge []byte) ([]byte, error) {
	attrs := parseAttributes(string(challenge))
	if v, ok := attrs["v"]; ok {
		return nil, s.verifyServerFinal(v)
	}
	return s.processServerFirst(string(challenge), attrs)
}

func (s *SCRAM) processServerFirst(serverFirst string, attrs map[string]string) ([]byte, error) {
	nonce, ok := attrs["r"]
	if !ok {
		return nil, fmt.Errorf("%w: server-first missing nonce", ErrProtocol)
	}
	if !strings.HasPrefix(nonce, s.clientNonce) {
		return nil, fmt.Errorf("%w: server nonce does not extend client nonce", ErrProtocol)
	}

	saltB64, ok := attrs["s"]
	if !ok {
		return nil, fmt.Errorf("%w: server-first missing salt", ErrProtocol)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt encoding", ErrProtocol)
	}

	iterStr, ok := attrs["i"]
	if !ok {
		return nil, fmt.Errorf("%w: server-first missing iteration count", ErrProtocol)
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf("%w: invalid iteration count %q", ErrProtocol, iterStr)
	}

	saltedPassword := pbkdf2.Key([]byte(s.creds.Password), salt, iterations, s.newHash().Size(), s.newHash)
	clientKey := s.hmacSum(saltedPassword, "Client Key")
	storedKey := s.hashSum(clientKey)

	cbindInput := append([]byte(s.gs2Header), s.creds.ChannelBinding...)
	clientFinalBare := fmt.Sprintf("c=%s,r=%s", base64.StdEncoding.EncodeToString(cbindInput), nonce)
	s.authMessage = s.clientFirstBare + "," + serverFirst + "," + clientFinalBare

	clientSignature := s.hmacSum(storedKey, s.authMessage)
	clientProof := make([]byte, len(clientKey))
	for i := range clientKey {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}

	serverKey := s.hmacSum(saltedPassword, "Server Key")
	s.expectedSig = s.hmacSum(serverKey, s.authMessage)

	final := clientFinalBare + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(final), nil
}

// verifyServerFinal checks the server signature in constant time. A mismatch
// is a hard authentication failure, not a protocol hiccup.
func (s *SCRAM) verifyServerFinal(sigB64 string) error {
	if s.expectedSig == nil {
		return fmt.Errorf("%w: server-final before client proof", ErrProtocol)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("%w: invalid v= encoding", ErrProtocol)
	}
	if subtle.ConstantTimeCompare(sig, s.expectedSig) != 1 {
		return ErrServerSignature
	}
	return nil
}

func (s *SCRAM) hmacSum(key []byte, data string) []byte {
	mac := hmac.New(s.newHash, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func (s *SCRAM) hashSum(data []byte) []byte {
	h := s.newHash()
	h.Write(data)
	return h.Sum(nil)
}

// saslname escapes '=' and ',' per RFC 5802.
func saslname(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	return strings.ReplaceAll(s, ",", "=2C")
}

func generateNonce() (string, error) {
	var buf [18]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf[:]), nil
}

// parseAttributes splits a comma-separated SCRAM message into its
// single-letter attributes. Later duplicates do not override earlier ones.
func parseAttributes(message string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(message, ",") {
		if len(part) >= 2 && part[1] == '=' {
			key := part[:1]
			if _, seen := attrs[key]; !seen {
				attrs[key] = part[2:]
			}
		}
	}
	return attrs
}
