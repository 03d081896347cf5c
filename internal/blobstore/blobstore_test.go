package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return s
}

func TestPutListDownload(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)

	require.NoError(t, s.Put(ctx, "uploads/u1/s1/2.webp", strings.NewReader("img2")))
	require.NoError(t, s.Put(ctx, "uploads/u1/s1/1.webp", strings.NewReader("img1")))
	require.NoError(t, s.Put(ctx, "uploads/u1/s1/1_meta.txt", strings.NewReader("Button: Play")))
	require.NoError(t, s.Put(ctx, "uploads/u1/s2/1.png", strings.NewReader("other")))

	blobs, err := s.List(ctx, "uploads/u1/s1/")
	require.NoError(t, err)
	require.Len(t, blobs, 3)

	assert.Equal(t, "uploads/u1/s1/1.webp", blobs[0].Name)
	assert.Equal(t, "image/webp", blobs[0].ContentType)
	assert.Equal(t, "uploads/u1/s1/1_meta.txt", blobs[1].Name)
	assert.Equal(t, "text/plain", blobs[1].ContentType)
	assert.Equal(t, int64(4), blobs[2].Size)

	data, err := s.Download(ctx, "uploads/u1/s1/1_meta.txt")
	require.NoError(t, err)
	assert.Equal(t, "Button: Play", string(data))

	_, err = s.Download(ctx, "uploads/u1/s1/missing.webp")
	assert.Error(t, err)
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)

	require.NoError(t, s.Put(ctx, "a/session.log", strings.NewReader("first")))
	require.NoError(t, s.Put(ctx, "a/session.log", strings.NewReader("second")))

	data, err := s.Download(ctx, "a/session.log")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(s.Root(), "a"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeleteIgnoresMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)

	require.NoError(t, s.Put(ctx, "a/1.webp", strings.NewReader("x")))

	err := s.Delete(ctx, []string{"a/1.webp", "a/never-existed.webp"})
	require.NoError(t, err)

	blobs, err := s.List(ctx, "a/")
	require.NoError(t, err)
	assert.Empty(t, blobs)

	// Deleting twice is fine.
	assert.NoError(t, s.Delete(ctx, []string{"a/1.webp"}))
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)

	for _, name := range []string{"", "../escape.webp", "a/../../b", "/", `a\b`} {
		err := s.Put(ctx, name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	err := s.Delete(ctx, []string{"../x"})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("x/1.JPG"))
	assert.Equal(t, "image/png", ContentType("x/1.png"))
	assert.Equal(t, "text/plain", ContentType("x/session.log"))
	assert.Equal(t, "application/octet-stream", ContentType("x/blob"))
}
