package session

import "io"

// RemoteChannel is an open duplex byte channel to a remote shell. Write
// sends raw input bytes; Read yields raw output bytes as they arrive and
// returns an error once the channel closes or fails. The channel is
// expected to perform no local echo of its own: input echo arrives only
// once, produced by the remote side.
type RemoteChannel interface {
	io.Reader
	io.Writer
	io.Closer
}
