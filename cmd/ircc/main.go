package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matt0x6f/irc-core/internal/config"
	"github.com/matt0x6f/irc-core/internal/events"
	"github.com/matt0x6f/irc-core/internal/irc"
	"github.com/matt0x6f/irc-core/internal/logger"
	"github.com/matt0x6f/irc-core/internal/plugin"
	"github.com/matt0x6f/irc-core/internal/sasl"
	"github.com/matt0x6f/irc-core/internal/security"
	"github.com/matt0x6f/irc-core/internal/storage"
	"github.com/matt0x6f/irc-core/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	server     string
	port       int
	tls        bool
	noTLS      bool
	certFile   string
	keyFile    string
	nick       string
	user       string
	realname   string
	join       []string
	debug      bool

	saslPlain    string
	saslScram256 string
	saslScram512 string
	saslExternal bool
	saslAuthzid  string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "ircc",
		Short:         "Minimal IRC client with CAP/SASL negotiation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", config.DefaultPath(), "config file path")
	cmd.Flags().StringVar(&f.server, "server", "", "server hostname")
	cmd.Flags().IntVar(&f.port, "port", 0, "server port")
	cmd.Flags().BoolVar(&f.tls, "tls", false, "connect over TLS")
	cmd.Flags().BoolVar(&f.noTLS, "no-tls", false, "connect in plaintext")
	cmd.Flags().StringVar(&f.certFile, "cert", "", "client certificate (PEM)")
	cmd.Flags().StringVar(&f.keyFile, "key", "", "client private key (PKCS#8 or PKCS#1 PEM)")
	cmd.Flags().StringVar(&f.nick, "nick", "", "nickname")
	cmd.Flags().StringVar(&f.user, "user", "", "username")
	cmd.Flags().StringVar(&f.realname, "realname", "", "realname")
	cmd.Flags().StringSliceVar(&f.join, "join", nil, "channels to join after registration")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")

	cmd.Flags().StringVar(&f.saslPlain, "sasl-plain", "", "SASL PLAIN credentials as user:pass")
	cmd.Flags().StringVar(&f.saslScram256, "sasl-scram256", "", "SASL SCRAM-SHA-256 credentials as user:pass")
	cmd.Flags().StringVar(&f.saslScram512, "sasl-scram512", "", "SASL SCRAM-SHA-512 credentials as user:pass")
	cmd.Flags().BoolVar(&f.saslExternal, "sasl-external", false, "SASL EXTERNAL (TLS client certificate)")
	cmd.Flags().StringVar(&f.saslAuthzid, "sasl-authzid", "", "SASL authorization identity")
	cmd.MarkFlagsMutuallyExclusive("sasl-plain", "sasl-scram256", "sasl-scram512", "sasl-external")

	return cmd
}

func run(f flags) error {
	logger.SetDebug(f.debug)

	settings, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(&settings, f)
	if err := settings.Validate(); err != nil {
		return err
	}

	mech, err := resolveMechanism(settings, f)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(archivePath(f.configPath), 256, 2*time.Second)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := events.NewBus()
	host := plugin.NewHost()
	host.Register(plugin.NewHighlightNotifier(settings.Nick))

	client := irc.NewClient(irc.Config{
		Network:   settings.Network,
		Host:      settings.Server,
		Port:      settings.Port,
		TLS:       transport.TLSOptions{Enabled: settings.TLS, CertFile: settings.CertFile, KeyFile: settings.KeyFile},
		Nick:      settings.Nick,
		User:      settings.User,
		Realname:  settings.Realname,
		Mechanism: mech,
		AutoJoin:  settings.AutoJoin,
	}, bus, store)
	client.OnEvent = host.DispatchEvent
	client.OnOutgoing = host.DispatchOutgoing

	if err := client.Connect(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- client.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Log.Info().Str("signal", s.String()).Msg("Shutting down")
		return client.Close()
	case err := <-done:
		client.Close()
		return err
	}
}

// applyFlags overlays command-line flags on the loaded settings.
func applyFlags(s *config.Settings, f flags) {
	if f.server != "" {
		s.Server = f.server
		if s.Network == config.Defaults().Network {
			s.Network = f.server
		}
	}
	if f.port != 0 {
		s.Port = f.port
	}
	if f.tls {
		s.TLS = true
	}
	if f.noTLS {
		s.TLS = false
	}
	if f.certFile != "" {
		s.CertFile = f.certFile
	}
	if f.keyFile != "" {
		s.KeyFile = f.keyFile
	}
	if f.nick != "" {
		s.Nick = f.nick
	}
	if f.user != "" {
		s.User = f.user
	}
	if f.realname != "" {
		s.Realname = f.realname
	}
	if len(f.join) > 0 {
		s.AutoJoin = f.join
	}
}

// resolveMechanism picks the SASL mechanism: command-line flags win over the
// config file, with priority EXTERNAL > SCRAM-SHA-512 > SCRAM-SHA-256 >
// PLAIN when the config enables more than one.
func resolveMechanism(settings config.Settings, f flags) (sasl.Mechanism, error) {
	switch {
	case f.saslExternal:
		return sasl.NewExternal(f.saslAuthzid), nil
	case f.saslScram512 != "":
		creds, err := splitCredentials(f.saslScram512, f.saslAuthzid)
		if err != nil {
			return nil, err
		}
		return sasl.NewSCRAMSHA512(creds), nil
	case f.saslScram256 != "":
		creds, err := splitCredentials(f.saslScram256, f.saslAuthzid)
		if err != nil {
			return nil, err
		}
		return sasl.NewSCRAMSHA256(creds), nil
	case f.saslPlain != "":
		creds, err := splitCredentials(f.saslPlain, f.saslAuthzid)
		if err != nil {
			return nil, err
		}
		return sasl.NewPlain(creds), nil
	}
	return settings.Mechanism(security.NewKeychain())
}

func splitCredentials(userPass, authzid string) (sasl.Credentials, error) {
	user, pass, ok := strings.Cut(userPass, ":")
	if !ok || user == "" {
		return sasl.Credentials{}, fmt.Errorf("credentials must be user:pass")
	}
	return sasl.Credentials{Authzid: authzid, Username: user, Password: pass}, nil
}

func archivePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "archive.db")
}
