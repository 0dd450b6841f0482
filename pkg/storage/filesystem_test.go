package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := store.SaveStream("student-1/receipt.pdf", strings.NewReader("%PDF-1.4"), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	ok, err := store.Exists("student-1/receipt.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	f, err := store.Open("student-1/receipt.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "%PDF-1.4", string(body))

	require.NoError(t, store.Delete("student-1/receipt.pdf"))
	ok, err = store.Exists("student-1/receipt.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../outside", "a/../../b"} {
		_, err := store.Exists(key)
		assert.ErrorIs(t, err, ErrInvalidPath, key)
	}
}

func TestLocalStorageEnforcesLimit(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("big.bin", strings.NewReader(strings.Repeat("x", 32)), 16)
	require.ErrorIs(t, err, ErrTooLarge)

	ok, err := store.Exists("big.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}
