package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	s := Defaults()
	s.Network = "example"
	s.Server = "irc.example.org"
	s.Port = 6667
	s.TLS = false
	s.AutoJoin = []string{"#go", "#irc"}
	s.SASL = SASLSettings{Scram256: true, Username: "user", Password: "pencil"}
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := Defaults()
	s.AutoJoin = []string{"not-a-channel"}
	require.NoError(t, s.Save(path))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestMechanismPriority(t *testing.T) {
	base := Defaults()
	base.SASL = SASLSettings{
		Plain:    true,
		Scram256: true,
		Scram512: true,
		Username: "user",
		Password: "pass",
	}

	mech, err := base.Mechanism(nil)
	require.NoError(t, err)
	assert.Equal(t, "SCRAM-SHA-512", mech.Name())

	base.SASL.External = true
	mech, err = base.Mechanism(nil)
	require.NoError(t, err)
	assert.Equal(t, "EXTERNAL", mech.Name())

	base.SASL.External = false
	base.SASL.Scram512 = false
	mech, err = base.Mechanism(nil)
	require.NoError(t, err)
	assert.Equal(t, "SCRAM-SHA-256", mech.Name())

	base.SASL.Scram256 = false
	mech, err = base.Mechanism(nil)
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", mech.Name())
}

func TestMechanismNoneConfigured(t *testing.T) {
	mech, err := Defaults().Mechanism(nil)
	require.NoError(t, err)
	assert.Nil(t, mech)
}

func TestMechanismRequiresCredentials(t *testing.T) {
	s := Defaults()
	s.SASL = SASLSettings{Plain: true, Username: "user"}
	_, err := s.Mechanism(nil)
	assert.Error(t, err)
}
