// Package bridge is the command surface: a stateless façade mapping UI
// requests onto the session, relay pool, uploader, proxy supervisor and
// network runtime components, and the single seam that classifies their
// errors into a fixed taxonomy before they reach the IPC boundary.
package bridge

import (
	"errors"
	"fmt"

	"github.com/obscurnet/nativebridge/internal/netrt"
	"github.com/obscurnet/nativebridge/internal/relaypool"
	"github.com/obscurnet/nativebridge/internal/secretstore"
	"github.com/obscurnet/nativebridge/internal/session"
	"github.com/obscurnet/nativebridge/internal/uploader"
)

// Kind is the fixed error taxonomy every Surface method classifies its
// failures into.
type Kind string

const (
	KindInvalidInput      Kind = "InvalidInput"
	KindNoSession         Kind = "NoSession"
	KindNotConnected      Kind = "NotConnected"
	KindAlreadyConnected  Kind = "AlreadyConnected"
	KindNetworkError      Kind = "NetworkError"
	KindHttpError         Kind = "HttpError"
	KindAuthError         Kind = "AuthError"
	KindCryptoError       Kind = "CryptoError"
	KindIoError           Kind = "IoError"
	KindProxyError        Kind = "ProxyError"
)

// Error is the single error type CommandSurface methods return.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error()}
}

// classify maps an internal package error into the taxonomy. Unrecognized
// errors fall back to IoError, the taxonomy's generic "something on this
// machine went wrong" bucket.
func classify(err error) *Error {
	if err == nil {
		return nil
	}

	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr
	}

	switch {
	case errors.Is(err, relaypool.ErrAlreadyConnected):
		return newError(KindAlreadyConnected, err)
	case errors.Is(err, relaypool.ErrNotConnected):
		return newError(KindNotConnected, err)
	case errors.Is(err, session.ErrNoSession):
		return newError(KindNoSession, err)
	case errors.Is(err, session.ErrInvalidKeyFormat):
		return newError(KindInvalidInput, err)
	case errors.Is(err, secretstore.ErrNotFound):
		return newError(KindNoSession, err)
	case errors.Is(err, uploader.ErrEmptyFile):
		return newError(KindInvalidInput, err)
	}

	var dialErr *netrt.DialError
	if errors.As(err, &dialErr) {
		if dialErr.Kind == netrt.KindWebSocketHTTP && dialErr.StatusCode != 0 {
			return newError(KindHttpError, err)
		}
		return newError(KindNetworkError, err)
	}

	var redirectErr *uploader.RedirectError
	if errors.As(err, &redirectErr) {
		return newError(KindHttpError, err)
	}
	var serverErr *uploader.ServerError
	if errors.As(err, &serverErr) {
		return newError(KindHttpError, err)
	}

	return newError(KindIoError, err)
}
