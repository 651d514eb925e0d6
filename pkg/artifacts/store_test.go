package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"fs":     fs,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("# hello from $example.com")

			d, err := s.Store(ctx, data)
			require.NoError(t, err)
			assert.Equal(t, Digest(data), d)
			assert.Len(t, d, len("sha256:")+64)

			again, err := s.Store(ctx, data)
			require.NoError(t, err)
			assert.Equal(t, d, again)

			ok, err := s.Exists(ctx, d)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.Get(ctx, d)
			require.NoError(t, err)
			assert.Equal(t, data, got)

			require.NoError(t, s.Delete(ctx, d))
			require.NoError(t, s.Delete(ctx, d))
			ok, err = s.Exists(ctx, d)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.Get(ctx, d)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStoreRejectsBadDigests(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, d := range []string{"", "md5:abcd", "sha256:zz", "sha256:abcd", "sha256:../../etc/passwd"} {
				_, err := s.Get(ctx, d)
				assert.Error(t, err, d)
				_, err = s.Exists(ctx, d)
				assert.Error(t, err, d)
				assert.Error(t, s.Delete(ctx, d), d)
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	dir := t.TempDir()
	s, err = NewStore(ctx, Config{Type: StoreTypeFS, DataDir: dir})
	require.NoError(t, err)
	fs, ok := s.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "content"), fs.baseDir)

	_, err = NewStore(ctx, Config{Type: StoreTypeS3})
	assert.ErrorContains(t, err, "PATH402_CONTENT_BUCKET")

	_, err = NewStore(ctx, Config{Type: StoreTypeGCS})
	assert.ErrorContains(t, err, "PATH402_CONTENT_BUCKET")

	_, err = NewStore(ctx, Config{Type: "tape"})
	assert.Error(t, err)
}

func TestFileStoreFansOut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	d, err := s.Store(context.Background(), []byte("fan out"))
	require.NoError(t, err)

	key, err := objectKey(d)
	require.NoError(t, err)
	h := d[len(digestPrefix):]
	assert.Equal(t, h[:2]+"/"+h[2:], key)
	assert.FileExists(t, filepath.Join(dir, h[:2], h[2:]))

	entries, err := os.ReadDir(filepath.Join(dir, h[:2]))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}
