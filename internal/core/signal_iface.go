//go:generate go run go.uber.org/mock/mockgen -source=signal_iface.go -destination=../mocks/mock_conn.go -package=mocks
package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// ConnID is the opaque handle of one accepted connection.
type ConnID string

type FrameKind int

const (
	TextFrame FrameKind = iota
	BinaryFrame
)

func (k FrameKind) String() string {
	if k == BinaryFrame {
		return "binary"
	}
	return "text"
}

// Frame is one transport message. Payload is never rewritten by the relay.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

func Text(b []byte) Frame   { return Frame{Kind: TextFrame, Payload: b} }
func Binary(b []byte) Frame { return Frame{Kind: BinaryFrame, Payload: b} }

// Conn abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: it fails with ErrBackpressure or ErrConnClosed.
type Conn interface {
	ID() ConnID
	TrySend(Frame) error
	Close()
}
