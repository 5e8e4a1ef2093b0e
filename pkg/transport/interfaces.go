package transport

import "net"

// FrameReadWriter provides length-prefixed frame I/O.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

// Sender is the write side shared by client and server connections.
type Sender interface {
	ID() string
	RemoteAddr() net.Addr
	Send(data []byte) error
	Close() error
}

var (
	_ FrameReadWriter = (*Framer)(nil)
	_ Sender          = (*Conn)(nil)
	_ Sender          = (*ServerConn)(nil)
)
