package tftp

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsProtocolErrorPassesThroughExisting(t *testing.T) {
	want := NewProtocolError(CodeDiskFull, "out of space")
	got := asProtocolError(want)
	assert.Same(t, want, got)
}

func TestAsProtocolErrorMapsKernelErrors(t *testing.T) {
	assert.Equal(t, CodeFileNotFound, asProtocolError(os.ErrNotExist).Code)
	assert.Equal(t, CodePermissionDenied, asProtocolError(os.ErrPermission).Code)
	assert.Equal(t, CodeFileAlreadyExists, asProtocolError(os.ErrExist).Code)
	assert.Equal(t, CodeDiskFull, asProtocolError(io.ErrShortWrite).Code)
}

func TestAsProtocolErrorDefaultsToUndefined(t *testing.T) {
	perr := asProtocolError(assert.AnError)
	assert.Equal(t, CodeUndefined, perr.Code)
	assert.Equal(t, assert.AnError.Error(), perr.Msg)
}

func TestAsProtocolErrorNil(t *testing.T) {
	assert.Nil(t, asProtocolError(nil))
}

func TestProtocolErrorDefaultMessage(t *testing.T) {
	perr := NewProtocolError(CodeFileNotFound, "")
	assert.Equal(t, "file not found", perr.Error())
}
