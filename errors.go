package tftp

import (
	"errors"
	"io"
	"os"
)

// ErrorCode is the wire-level TFTP error code carried by an ERROR packet.
type ErrorCode uint16

// Wire error codes, RFC 1350 section 5.
const (
	CodeUndefined               ErrorCode = 0
	CodeFileNotFound            ErrorCode = 1
	CodePermissionDenied        ErrorCode = 2
	CodeDiskFull                ErrorCode = 3
	CodeIllegalOperation        ErrorCode = 4
	CodeUnknownTransferID       ErrorCode = 5
	CodeFileAlreadyExists       ErrorCode = 6
	CodeNoSuchUser              ErrorCode = 7
	CodeOptionNegotiationFailed ErrorCode = 8
)

var defaultMessage = map[ErrorCode]string{
	CodeFileNotFound:            "file not found",
	CodePermissionDenied:        "access violation",
	CodeDiskFull:                "disk full or allocation exceeded",
	CodeIllegalOperation:        "illegal TFTP operation",
	CodeUnknownTransferID:       "unknown transfer ID",
	CodeFileAlreadyExists:       "file already exists",
	CodeNoSuchUser:              "no such user",
	CodeOptionNegotiationFailed: "option negotiation failed",
}

// ProtocolError is the typed error surface returned by a Handler and by
// asProtocolError. It carries the wire code that will be sent back to
// the peer. The codec does not return it; Decode fails with
// ErrInvalidPacket.
type ProtocolError struct {
	Code ErrorCode
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if m, ok := defaultMessage[e.Code]; ok {
		return m
	}
	return "undefined TFTP error"
}

// Is matches any ProtocolError carrying the same wire code, so
// errors.Is works against the package sentinels regardless of which
// call site minted the error.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Code == e.Code
}

// NewProtocolError builds a ProtocolError for code, using the canonical
// default message unless msg is non-empty.
func NewProtocolError(code ErrorCode, msg string) *ProtocolError {
	return &ProtocolError{Code: code, Msg: msg}
}

// Sentinel protocol errors for the common handler outcomes.
var (
	ErrFileNotFound            = NewProtocolError(CodeFileNotFound, "")
	ErrPermissionDenied        = NewProtocolError(CodePermissionDenied, "")
	ErrDiskFull                = NewProtocolError(CodeDiskFull, "")
	ErrIllegalOperation        = NewProtocolError(CodeIllegalOperation, "")
	ErrUnknownTransferID       = NewProtocolError(CodeUnknownTransferID, "")
	ErrFileAlreadyExists       = NewProtocolError(CodeFileAlreadyExists, "")
	ErrNoSuchUser              = NewProtocolError(CodeNoSuchUser, "")
	ErrOptionNegotiationFailed = NewProtocolError(CodeOptionNegotiationFailed, "")
)

// ErrInvalidPacket is returned by Decode when a datagram cannot be parsed
// as any known packet variant, or leaves residual bytes after parsing.
var ErrInvalidPacket = errors.New("tftp: invalid packet")

// errMaxSendRetriesReached marks a session that exhausted its retry
// budget. Per design, this never produces a wire ERROR: the peer is
// presumed unreachable.
var errMaxSendRetriesReached = errors.New("tftp: max send retries reached")

// errOptionNegotiationAborted marks a session that the peer cleanly
// abandoned during OACK handshake (client sent ERROR/OptionNegotiationFailed).
var errOptionNegotiationAborted = errors.New("tftp: peer aborted option negotiation")

// asProtocolError maps an arbitrary error from a Handler or the local
// filesystem into the ProtocolError that will be put on the wire.
func asProtocolError(err error) *ProtocolError {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewProtocolError(CodeFileNotFound, "")
	case errors.Is(err, os.ErrPermission):
		return NewProtocolError(CodePermissionDenied, "")
	case errors.Is(err, os.ErrExist):
		return NewProtocolError(CodeFileAlreadyExists, "")
	case errors.Is(err, io.ErrShortWrite), errors.Is(err, io.ErrClosedPipe):
		return NewProtocolError(CodeDiskFull, "")
	default:
		return NewProtocolError(CodeUndefined, err.Error())
	}
}
