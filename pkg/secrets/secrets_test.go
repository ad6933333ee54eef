package secrets_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/secrets"
)

var master = []byte(strings.Repeat("k", 40))

func TestDerive(t *testing.T) {
	t.Parallel()

	t.Run("deterministic per purpose", func(t *testing.T) {
		t.Parallel()
		a, err := secrets.Derive(master, secrets.PurposeCookieSigning)
		require.NoError(t, err)
		b, err := secrets.Derive(master, secrets.PurposeCookieSigning)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, secrets.KeySize)
	})

	t.Run("purposes differ", func(t *testing.T) {
		t.Parallel()
		a, err := secrets.Derive(master, secrets.PurposeCookieSigning)
		require.NoError(t, err)
		b, err := secrets.Derive(master, secrets.PurposeLinkingToken)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("short master", func(t *testing.T) {
		t.Parallel()
		_, err := secrets.Derive([]byte("short"), secrets.PurposeCookieSigning)
		assert.ErrorIs(t, err, secrets.ErrMasterTooShort)
	})

	t.Run("empty purpose", func(t *testing.T) {
		t.Parallel()
		_, err := secrets.Derive(master, "")
		assert.ErrorIs(t, err, secrets.ErrEmptyPurpose)
	})
}

func TestNewKeyring(t *testing.T) {
	t.Parallel()

	kr, err := secrets.NewKeyring(string(master))
	require.NoError(t, err)
	assert.NotEqual(t, kr.CookieSigning, kr.CookieEncryption)
	assert.NotEqual(t, kr.CookieEncryption, kr.LinkingToken)

	_, err = secrets.NewKeyring("")
	assert.ErrorIs(t, err, secrets.ErrMasterTooShort)
}
