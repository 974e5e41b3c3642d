package proto

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/netutil"
)

// MsgType is the type of message types
type MsgType = uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID MsgType = iota
	// MT_OBJECT_SPAWN makes an object visible to a connection, carrying the initial payload
	MT_OBJECT_SPAWN
	// MT_OBJECT_DESTROY tells observers that an object is destroyed
	MT_OBJECT_DESTROY
	// MT_OBJECT_HIDE tells a connection that it no longer observes an object
	MT_OBJECT_HIDE
	// MT_UPDATE_VARS carries a delta payload of dirty components
	MT_UPDATE_VARS
	// MT_AUTHORITY_CHANGED notifies a connection that client authority is granted or revoked
	MT_AUTHORITY_CHANGED
	// MT_CALL_COMMAND is a call from client to server
	MT_CALL_COMMAND
	// MT_CALL_RPC is a call from server to clients
	MT_CALL_RPC
	// MT_CALL_EVENT is an event broadcast to all observers
	MT_CALL_EVENT
	// MT_READY is sent by a client when it is ready to receive replication
	MT_READY
	// MT_NOT_READY is sent by a client when it stops receiving replication
	MT_NOT_READY
	// MT_LOCAL_PLAYER tells a client which object is its local player
	MT_LOCAL_PLAYER
)

var msgTypeNames = map[MsgType]string{
	MT_INVALID:           "MT_INVALID",
	MT_OBJECT_SPAWN:      "MT_OBJECT_SPAWN",
	MT_OBJECT_DESTROY:    "MT_OBJECT_DESTROY",
	MT_OBJECT_HIDE:       "MT_OBJECT_HIDE",
	MT_UPDATE_VARS:       "MT_UPDATE_VARS",
	MT_AUTHORITY_CHANGED: "MT_AUTHORITY_CHANGED",
	MT_CALL_COMMAND:      "MT_CALL_COMMAND",
	MT_CALL_RPC:          "MT_CALL_RPC",
	MT_CALL_EVENT:        "MT_CALL_EVENT",
	MT_READY:             "MT_READY",
	MT_NOT_READY:         "MT_NOT_READY",
	MT_LOCAL_PLAYER:      "MT_LOCAL_PLAYER",
}

// MsgTypeName returns the readable name of msgtype
func MsgTypeName(msgtype MsgType) string {
	if name, ok := msgTypeNames[msgtype]; ok {
		return name
	}
	return "MT_UNKNOWN"
}

// ErrMalformedMessage is the cause of every decoding failure
var ErrMalformedMessage = errors.New("malformed message")

// CallKind is the category of a remote call
type CallKind uint8

const (
	// CallCommand is a server-bound call sent by a client
	CallCommand CallKind = iota + 1
	// CallRPC is a client-bound notification sent by the server
	CallRPC
	// CallEvent is an event broadcast to observers
	CallEvent
)

func (k CallKind) String() string {
	switch k {
	case CallCommand:
		return "Command"
	case CallRPC:
		return "RPC"
	case CallEvent:
		return "Event"
	}
	return "CallKind?"
}

// MsgType returns the message type that carries calls of kind k
func (k CallKind) MsgType() MsgType {
	switch k {
	case CallCommand:
		return MT_CALL_COMMAND
	case CallRPC:
		return MT_CALL_RPC
	case CallEvent:
		return MT_CALL_EVENT
	}
	return MT_INVALID
}

// CallKindOf returns the call kind carried by msgtype
func CallKindOf(msgtype MsgType) (CallKind, bool) {
	switch msgtype {
	case MT_CALL_COMMAND:
		return CallCommand, true
	case MT_CALL_RPC:
		return CallRPC, true
	case MT_CALL_EVENT:
		return CallEvent, true
	}
	return 0, false
}

func malformed(r *netutil.NetReader, what string) error {
	return errors.Wrapf(ErrMalformedMessage, "%s: %v", what, r.Err())
}
