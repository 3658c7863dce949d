package validation

import (
	"fmt"
	"strings"
)

// ValidateChannelName checks an IRC channel name before it goes on the wire.
func ValidateChannelName(channel string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}
	if channel[0] != '#' && channel[0] != '&' && channel[0] != '+' && channel[0] != '!' {
		return fmt.Errorf("channel name must start with #, &, +, or !")
	}
	if len(channel) > 200 {
		return fmt.Errorf("channel name too long (max 200 characters)")
	}
	if strings.ContainsAny(channel, " \x00\x07\x0A\x0D,") {
		return fmt.Errorf("channel name contains invalid characters")
	}
	return nil
}

// ValidateServerAddress checks a host and port pair.
func ValidateServerAddress(address string, port int) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("server address is required")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// ValidateNick checks a nickname for characters IRC servers reject outright.
func ValidateNick(nick string) error {
	if strings.TrimSpace(nick) == "" {
		return fmt.Errorf("nickname is required")
	}
	if strings.ContainsAny(nick, " \x00\x07\x0A\x0D,:") {
		return fmt.Errorf("nickname contains invalid characters")
	}
	return nil
}
