package tftp

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// DirMode selects which operations a DirHandler serves.
type DirMode int

const (
	DirReadOnly DirMode = iota
	DirWriteOnly
	DirReadWrite
)

// DirHandler serves a directory tree over TFTP: it roots every
// request at dir, rejects any path that escapes it, and serves only
// regular files on RRQ.
type DirHandler struct {
	dir  string
	mode DirMode
}

// NewReadOnlyDirHandler serves RRQ only.
func NewReadOnlyDirHandler(dir string) (*DirHandler, error) {
	return newDirHandler(dir, DirReadOnly)
}

// NewWriteOnlyDirHandler serves WRQ only.
func NewWriteOnlyDirHandler(dir string) (*DirHandler, error) {
	return newDirHandler(dir, DirWriteOnly)
}

// NewReadWriteDirHandler serves both RRQ and WRQ.
func NewReadWriteDirHandler(dir string) (*DirHandler, error) {
	return newDirHandler(dir, DirReadWrite)
}

func newDirHandler(dir string, mode DirMode) (*DirHandler, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "tftp", Path: abs, Err: os.ErrInvalid}
	}
	return &DirHandler{dir: abs, mode: mode}, nil
}

// securePath joins name under root, rejecting any traversal outside
// it: a literal ".." component anywhere in the request, an absolute
// path, or a Windows drive prefix are all PermissionDenied. The ".."
// scan runs on the raw request before any cleaning, so a name like
// "a/../b" is rejected even though it would resolve inside the root.
func securePath(root, name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "./")

	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", ErrPermissionDenied
		}
	}

	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", ErrPermissionDenied
	}

	joined := filepath.Join(root, clean)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", ErrPermissionDenied
	}
	return joined, nil
}

// OpenRead implements Handler.
func (h *DirHandler) OpenRead(_ context.Context, _ net.Addr, path string) (io.ReadCloser, int64, bool, error) {
	if h.mode == DirWriteOnly {
		return nil, 0, false, ErrIllegalOperation
	}
	full, err := securePath(h.dir, path)
	if err != nil {
		return nil, 0, false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, 0, false, asProtocolError(err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, false, ErrFileNotFound
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, false, asProtocolError(err)
	}
	return f, info.Size(), true, nil
}

// OpenWrite implements Handler.
func (h *DirHandler) OpenWrite(_ context.Context, _ net.Addr, path string, announcedSize int64) (io.WriteCloser, error) {
	if h.mode == DirReadOnly {
		return nil, ErrIllegalOperation
	}
	full, err := securePath(h.dir, path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, asProtocolError(err)
	}
	return f, nil
}
