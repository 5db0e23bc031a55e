package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	key := NewKey("batches/42", "March Invoices (final).CSV", now)
	assert.True(t, strings.HasPrefix(key, "batches/42/"), key)
	assert.True(t, strings.HasSuffix(key, "-march-invoices-final.csv"), key)

	other := NewKey("batches/42", "March Invoices (final).CSV", now)
	assert.NotEqual(t, key, other)

	assert.True(t, strings.HasSuffix(NewKey("x", "  .PDF", now), "-file.pdf"))
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "archives/1/batch.zip", []byte("zip"), "application/zip"))
	ok, err := s.Exists(ctx, "archives/1/batch.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Get(ctx, "archives/1/batch.zip")
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))

	require.NoError(t, s.Delete(ctx, "archives/1/batch.zip"))
	require.NoError(t, s.Delete(ctx, "archives/1/batch.zip"))
	_, err = s.Get(ctx, "archives/1/batch.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "a//b"} {
		err := s.Put(context.Background(), key, []byte("x"), "")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}
