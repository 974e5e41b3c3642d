package netutil

import (
	"io"
	"net"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF || err == ErrConnectionClosed {
		return true
	}

	if _, ok := err.(*websocket.CloseError); ok {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return false
	}
	if neterr.Timeout() {
		return false
	}

	return true
}
