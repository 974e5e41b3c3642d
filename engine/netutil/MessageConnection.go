package netutil

import (
	"net"

	"github.com/pkg/errors"
)

var (
	// ErrConnectionClosed is returned when sending or receiving on a closed connection
	ErrConnectionClosed = errors.New("connection closed")
)

// MessageConnection is a bidirectional message-oriented transport
//
// Each message is a msgtype followed by an opaque payload. SendMessage must be
// safe to call from any goroutine; RecvMessage is called by a single reader.
type MessageConnection interface {
	SendMessage(msgtype uint16, payload []byte) error
	RecvMessage() (msgtype uint16, payload []byte, err error)
	Close() error
	RemoteAddr() net.Addr
}

// EncodeMessage builds the wire frame of one message
func EncodeMessage(msgtype uint16, payload []byte) []byte {
	w := NewNetWriter(2 + len(payload))
	w.AppendUint16(msgtype)
	w.AppendBytes(payload)
	return w.Bytes()
}

// DecodeMessage splits a wire frame into msgtype and payload
func DecodeMessage(frame []byte) (uint16, []byte, error) {
	r := NewNetReader(frame)
	msgtype := r.ReadUint16()
	if r.Err() != nil {
		return 0, nil, errors.Wrap(r.Err(), "decode message header")
	}
	return msgtype, r.UnreadBytes(), nil
}
