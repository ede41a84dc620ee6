package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/storage"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	ref := "tenant-1/cand-42/ktp/doc-1.jpg"
	require.NoError(t, s.Put(ctx, ref, strings.NewReader("image-bytes"), "image/jpeg"))

	ok, err := s.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	require.NoError(t, s.Delete(ctx, ref))
	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocalRejectsEscapingRefs(t *testing.T) {
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	for _, ref := range []string{"", "../x", "a/../../x", "/etc/passwd"} {
		err := s.Put(context.Background(), ref, strings.NewReader("x"), "")
		assert.Error(t, err, "ref %q", ref)
	}
}
