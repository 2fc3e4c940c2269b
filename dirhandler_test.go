package tftp

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peerAddr(t *testing.T) net.Addr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:12345")
	require.NoError(t, err)
	return addr
}

func TestDirHandlerOpenReadServesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "boot.img"), []byte("hello"), 0o644))

	h, err := NewReadOnlyDirHandler(dir)
	require.NoError(t, err)

	r, size, ok, err := h.OpenRead(context.Background(), peerAddr(t), "boot.img")
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, ok)
	assert.EqualValues(t, 5, size)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDirHandlerOpenReadRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	h, err := NewReadOnlyDirHandler(dir)
	require.NoError(t, err)

	for _, name := range []string{"../secret", "a/../../secret", "/etc/passwd", "a/../b"} {
		_, _, _, err := h.OpenRead(context.Background(), peerAddr(t), name)
		assert.ErrorIs(t, err, ErrPermissionDenied, "name=%q", name)
	}
}

func TestDirHandlerOpenReadRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	h, err := NewReadOnlyDirHandler(dir)
	require.NoError(t, err)

	_, _, _, err = h.OpenRead(context.Background(), peerAddr(t), "sub")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDirHandlerOpenReadMissing(t *testing.T) {
	dir := t.TempDir()
	h, err := NewReadOnlyDirHandler(dir)
	require.NoError(t, err)

	_, _, _, err = h.OpenRead(context.Background(), peerAddr(t), "nope")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDirHandlerReadOnlyRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	h, err := NewReadOnlyDirHandler(dir)
	require.NoError(t, err)

	_, err = h.OpenWrite(context.Background(), peerAddr(t), "new.img", 0)
	assert.ErrorIs(t, err, ErrIllegalOperation)
}

func TestDirHandlerWriteOnlyRejectsRead(t *testing.T) {
	dir := t.TempDir()
	h, err := NewWriteOnlyDirHandler(dir)
	require.NoError(t, err)

	_, _, _, err = h.OpenRead(context.Background(), peerAddr(t), "boot.img")
	assert.ErrorIs(t, err, ErrIllegalOperation)
}

func TestDirHandlerOpenWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	h, err := NewReadWriteDirHandler(dir)
	require.NoError(t, err)

	w, err := h.OpenWrite(context.Background(), peerAddr(t), "up.img", 4)
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := os.ReadFile(filepath.Join(dir, "up.img"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestSecurePathStripsLeadingSlashAndDotSlash(t *testing.T) {
	root := t.TempDir()

	p1, err := securePath(root, "/boot.img")
	require.NoError(t, err)
	p2, err := securePath(root, "./boot.img")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, filepath.Join(root, "boot.img"), p1)
}
