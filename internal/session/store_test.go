package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rickgao/notifystream/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, auth.ModeLocal, s.AuthMode())
	assert.Empty(t, s.AccessToken())
	assert.False(t, s.HasCredential())
	assert.True(t, s.SoundEnabled())
}

func TestOpenInvalidMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth_mode: kerberos\n"), 0o600))

	_, err := Open(path, nil)
	assert.ErrorIs(t, err, auth.ErrUnknownMode)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetTokens(auth.ModeLocal, "a-1", "r-1"))
	require.NoError(t, s.SetSoundEnabled(false))
	require.NoError(t, s.SaveAccessToken("a-2", ""))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "a-2", reopened.AccessToken())
	assert.Equal(t, "r-1", reopened.RefreshToken(), "empty refresh keeps stored value")
	assert.False(t, reopened.SoundEnabled())
	assert.True(t, reopened.HasCredential())
}

func TestClearKeepsPreferences(t *testing.T) {
	s := NewMemory(Data{AuthMode: "identity_provider", AccessToken: "a", RefreshToken: "r", SoundAlertsDisabled: true})
	assert.True(t, s.HasCredential())
	assert.Equal(t, auth.ModeIdentityProvider, s.AuthMode())

	require.NoError(t, s.Clear())
	assert.Equal(t, Data{SoundAlertsDisabled: true}, s.data)
	assert.False(t, s.HasCredential())
	assert.Equal(t, auth.ModeLocal, s.AuthMode())
}

func TestStoreSatisfiesTokenStore(t *testing.T) {
	var _ auth.TokenStore = (*Store)(nil)
}
