package relaypool

import "errors"

// ErrAlreadyConnected is returned by Connect when a connection for the URL
// already exists. It is non-fatal and reported to the caller as a
// classified, expected condition rather than a generic failure.
var ErrAlreadyConnected = errors.New("relaypool: already connected")

// ErrNotConnected is returned by Publish, SendRaw and Disconnect when there
// is no live connection for the URL, and by Connect when a Disconnect for
// the URL lands while its dial is still in flight.
var ErrNotConnected = errors.New("relaypool: not connected")
