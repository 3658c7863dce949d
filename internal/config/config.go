// Package config loads and saves the client settings file and resolves the
// SASL mechanism to use for a connection.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matt0x6f/irc-core/internal/sasl"
	"github.com/matt0x6f/irc-core/internal/security"
	"github.com/matt0x6f/irc-core/internal/validation"
)

// SASLSettings selects at most one mechanism. When several are configured
// the priority is EXTERNAL, then SCRAM-SHA-512, then SCRAM-SHA-256, then
// PLAIN. Password may be left empty on disk and resolved from the OS
// keychain under "<network>/<username>".
type SASLSettings struct {
	External bool   `json:"external,omitempty"`
	Scram512 bool   `json:"scram512,omitempty"`
	Scram256 bool   `json:"scram256,omitempty"`
	Plain    bool   `json:"plain,omitempty"`
	Authzid  string `json:"authzid,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Settings is the persisted client configuration.
type Settings struct {
	Network  string       `json:"network"`
	Server   string       `json:"server"`
	Port     int          `json:"port"`
	TLS      bool         `json:"tls"`
	CertFile string       `json:"cert_file,omitempty"`
	KeyFile  string       `json:"key_file,omitempty"`
	Nick     string       `json:"nick"`
	User     string       `json:"user"`
	Realname string       `json:"realname"`
	AutoJoin []string     `json:"autojoin"`
	SASL     SASLSettings `json:"sasl"`
}

// Defaults returns the settings used when no config file exists.
func Defaults() Settings {
	return Settings{
		Network:  "libera",
		Server:   "irc.libera.chat",
		Port:     6697,
		TLS:      true,
		Nick:     "irccore",
		User:     "irccore",
		Realname: "irc-core",
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "irc-core.json"
	}
	return filepath.Join(home, ".config", "irc-core", "config.json")
}

// Load reads settings from path, falling back to defaults when the file does
// not exist.
func Load(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes settings to path, creating parent directories as needed.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the fields that reach the wire.
func (s Settings) Validate() error {
	if err := validation.ValidateServerAddress(s.Server, s.Port); err != nil {
		return err
	}
	if err := validation.ValidateNick(s.Nick); err != nil {
		return err
	}
	for _, ch := range s.AutoJoin {
		if err := validation.ValidateChannelName(ch); err != nil {
			return fmt.Errorf("autojoin %q: %w", ch, err)
		}
	}
	return nil
}

// Mechanism resolves the configured SASL mechanism, pulling a missing
// password from the keychain. Returns nil when SASL is not configured.
func (s Settings) Mechanism(kc *security.Keychain) (sasl.Mechanism, error) {
	if s.SASL.External {
		return sasl.NewExternal(s.SASL.Authzid), nil
	}
	if !s.SASL.Scram512 && !s.SASL.Scram256 && !s.SASL.Plain {
		return nil, nil
	}

	password := s.SASL.Password
	if password == "" && kc != nil {
		var err error
		password, err = kc.GetPassword(s.Network + "/" + s.SASL.Username)
		if err != nil {
			return nil, err
		}
	}
	if s.SASL.Username == "" || password == "" {
		return nil, fmt.Errorf("SASL requires a username and password")
	}

	creds := sasl.Credentials{
		Authzid:  s.SASL.Authzid,
		Username: s.SASL.Username,
		Password: password,
	}
	switch {
	case s.SASL.Scram512:
		return sasl.NewSCRAMSHA512(creds), nil
	case s.SASL.Scram256:
		return sasl.NewSCRAMSHA256(creds), nil
	default:
		return sasl.NewPlain(creds), nil
	}
}
