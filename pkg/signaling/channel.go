package signaling

import "errors"

// ErrClosed is returned by Recv once the peer end of a ChannelSignaler has
// been closed and no further messages remain queued.
var ErrClosed = errors.New("signaling: channel closed")

// ChannelSignaler is an in-memory Signaler backed by a pair of Go channels,
// the library's own standard-library counterpart to a mock transport: one
// ChannelSignaler's sends are the other's receives.
type ChannelSignaler struct {
	send chan Message
	recv chan Message
}

// NewChannelPair returns two ChannelSignalers wired to each other, for
// tests and the example binary.
func NewChannelPair(buffer int) (a, b *ChannelSignaler) {
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	a = &ChannelSignaler{send: ab, recv: ba}
	b = &ChannelSignaler{send: ba, recv: ab}
	return a, b
}

// Send enqueues msg for the peer ChannelSignaler to receive.
func (c *ChannelSignaler) Send(msg Message) error {
	c.send <- msg
	return nil
}

// Recv blocks until a message arrives or the peer's Close is observed.
func (c *ChannelSignaler) Recv() (Message, error) {
	msg, ok := <-c.recv
	if !ok {
		return Message{}, ErrClosed
	}
	return msg, nil
}

// Close closes this signaler's send side; the peer's next Recv past its
// queued messages returns ErrClosed.
func (c *ChannelSignaler) Close() error {
	close(c.send)
	return nil
}
