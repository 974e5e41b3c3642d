package netutil

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
)

// WebSocketConnection is a MessageConnection over binary websocket frames
type WebSocketConnection struct {
	conn       *websocket.Conn
	writeLock  sync.Mutex
	closed     xnsyncutil.AtomicBool
	remoteAddr net.Addr
}

// NewWebSocketConnection wraps an established websocket
func NewWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
	}
}

// SendMessage writes one message as a binary frame
func (wc *WebSocketConnection) SendMessage(msgtype uint16, payload []byte) error {
	if wc.closed.Load() {
		return ErrConnectionClosed
	}

	frame := EncodeMessage(msgtype, payload)
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send msgtype=%d len=%d", wc, msgtype, len(payload))
	}

	wc.writeLock.Lock()
	defer wc.writeLock.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(consts.WEBSOCKET_WRITE_TIMEOUT))
	if err := wc.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errors.Wrap(err, "websocket write")
	}
	return nil
}

// RecvMessage blocks until the next binary frame arrives
func (wc *WebSocketConnection) RecvMessage() (uint16, []byte, error) {
	for {
		if wc.closed.Load() {
			return 0, nil, ErrConnectionClosed
		}
		mt, frame, err := wc.conn.ReadMessage()
		if err != nil {
			return 0, nil, errors.Wrap(err, "websocket read")
		}
		if mt != websocket.BinaryMessage {
			gwlog.Warnf("%s: ignore non-binary frame of type %d", wc, mt)
			continue
		}
		msgtype, payload, err := DecodeMessage(frame)
		if err != nil {
			gwlog.Warnf("%s: ignore frame: %v", wc, err)
			continue
		}
		if consts.DEBUG_PACKETS {
			gwlog.Debugf("%s: recv msgtype=%d len=%d", wc, msgtype, len(payload))
		}
		return msgtype, payload, nil
	}
}

// Close closes the websocket, only the first call has effect
func (wc *WebSocketConnection) Close() error {
	if wc.closed.Load() {
		return nil
	}
	wc.closed.Store(true)

	wc.writeLock.Lock()
	wc.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	wc.writeLock.Unlock()
	return wc.conn.Close()
}

// IsClosed returns if the connection is closed
func (wc *WebSocketConnection) IsClosed() bool {
	return wc.closed.Load()
}

// RemoteAddr returns the remote address
func (wc *WebSocketConnection) RemoteAddr() net.Addr {
	return wc.remoteAddr
}

func (wc *WebSocketConnection) String() string {
	return "WebSocketConnection<" + wc.remoteAddr.String() + ">"
}
