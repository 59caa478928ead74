package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useArrayKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := opener
	opener = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { opener = prev })
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)

	require.NoError(t, Set("imap_password", "hunter2"))

	v, err := Get("imap_password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	require.NoError(t, Delete("imap_password"))
	_, err = Get("imap_password")
	require.Error(t, err)
}

func TestLookupPrefersEnvironment(t *testing.T) {
	useArrayKeyring(t)
	require.NoError(t, Set("anthropic_api_key", "from-keyring"))

	v, err := Lookup("anthropic_api_key")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", v)

	t.Setenv("MAILTRIAGE_ANTHROPIC_API_KEY", "from-env")
	v, err = Lookup("anthropic_api_key")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestLookupMissing(t *testing.T) {
	useArrayKeyring(t)

	_, err := Lookup("imap_password")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "MAILTRIAGE_IMAP_PASSWORD", EnvName("imap_password"))
	assert.Equal(t, "MAILTRIAGE_WORK_IMAP", EnvName("work-imap"))
}
