// Package transport provides the byte-stream layer under an IRC connection:
// plaintext or TLS TCP with line buffering, and the tls-server-end-point
// channel-binding material the SASL layer needs.
package transport

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matt0x6f/irc-core/internal/logger"
	"github.com/matt0x6f/irc-core/internal/proto"
)

// ErrConnectionClosed is returned by NextMessage when the peer closes the
// connection.
var ErrConnectionClosed = errors.New("transport: connection closed")

// connectTimeout bounds the TCP connect; later I/O has no built-in deadline.
const connectTimeout = 10 * time.Second

// TLSOptions configures the optional TLS wrapping of a connection.
type TLSOptions struct {
	Enabled bool
	// CertFile and KeyFile optionally supply a client certificate for
	// SASL EXTERNAL. The key may be PKCS#8 or PKCS#1/RSA encoded.
	CertFile string
	KeyFile  string
	// RootCAs overrides the trust anchors. Nil means the system pool.
	RootCAs *x509.CertPool
}

// Conn is a single IRC connection. One goroutine owns the read side; writes
// are serialized internally so interleaved SendRaw calls stay whole lines.
type Conn struct {
	conn           net.Conn
	buf            []byte
	serverEndPoint []byte

	writeMu sync.Mutex
}

// Dial connects to host:port, optionally completing a TLS handshake. On TLS
// success the leaf peer certificate's SHA-256 digest is cached as the
// tls-server-end-point channel-binding value.
func Dial(host string, port int, opts TLSOptions) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: connectTimeout}
	tcp, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if t, ok := tcp.(*net.TCPConn); ok {
		if err := t.SetNoDelay(true); err != nil {
			tcp.Close()
			return nil, fmt.Errorf("failed to set TCP_NODELAY: %w", err)
		}
	}

	if !opts.Enabled {
		logger.Log.Debug().Str("addr", addr).Msg("Connected (plaintext)")
		return &Conn{conn: tcp}, nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
		ServerName: host,
		RootCAs:    opts.RootCAs,
	}
	if opts.CertFile != "" && opts.KeyFile != "" {
		cert, err := loadClientCertificate(opts.CertFile, opts.KeyFile)
		if err != nil {
			tcp.Close()
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	tlsConn := tls.Client(tcp, cfg)
	if err := tlsConn.Handshake(); err != nil {
		tcp.Close()
		return nil, fmt.Errorf("TLS handshake with %s failed: %w", addr, err)
	}

	var endPoint []byte
	if certs := tlsConn.ConnectionState().PeerCertificates; len(certs) > 0 {
		sum := sha256.Sum256(certs[0].Raw)
		endPoint = sum[:]
	}
	logger.Log.Debug().Str("addr", addr).Bool("channel_binding", endPoint != nil).Msg("Connected (TLS)")
	return &Conn{conn: tlsConn, serverEndPoint: endPoint}, nil
}

// TLSServerEndPoint returns the channel-binding hash cached at connect time,
// or nil for plaintext connections.
func (c *Conn) TLSServerEndPoint() []byte {
	return c.serverEndPoint
}

// SendRaw writes one line to the wire, appending CRLF when absent.
func (c *Conn) SendRaw(line string) error {
	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// SendMessage serializes and writes a message.
func (c *Conn) SendMessage(msg *proto.Message) error {
	return c.SendRaw(msg.Line())
}

// NextMessage reads until a CRLF-terminated line is buffered and returns the
// parsed message. Lines that fail to parse are logged and skipped; parse
// failures are never fatal here.
func (c *Conn) NextMessage() (*proto.Message, error) {
	tmp := make([]byte, 1024)
	for {
		if idx := bytes.Index(c.buf, []byte("\r\n")); idx != -1 {
			line := string(c.buf[:idx+2])
			c.buf = c.buf[idx+2:]
			msg, err := proto.ParseLine(line)
			if err != nil {
				logger.Log.Warn().Err(err).Str("line", line).Msg("Skipping unparseable line")
				continue
			}
			return msg, nil
		}

		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrConnectionClosed
			}
			return nil, fmt.Errorf("read failed: %w", err)
		}
	}
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// loadClientCertificate reads a PEM certificate chain and private key.
// PKCS#8 is tried first, then PKCS#1 (RSA).
func loadClientCertificate(certFile, keyFile string) (tls.Certificate, error) {
	var cert tls.Certificate

	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return cert, fmt.Errorf("failed to read client certificate: %w", err)
	}
	for block, rest := pem.Decode(certPEM); block != nil; block, rest = pem.Decode(rest) {
		if block.Type == "CERTIFICATE" {
			cert.Certificate = append(cert.Certificate, block.Bytes)
		}
	}
	if len(cert.Certificate) == 0 {
		return cert, fmt.Errorf("no CERTIFICATE block in %s", certFile)
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return cert, fmt.Errorf("failed to read client key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return cert, fmt.Errorf("no PEM block in %s", keyFile)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		cert.PrivateKey = key
		return cert, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return cert, fmt.Errorf("unsupported private key format in %s: %w", keyFile, err)
	}
	cert.PrivateKey = key
	return cert, nil
}
