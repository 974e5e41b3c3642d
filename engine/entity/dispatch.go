package entity

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwutils"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// Dispatch routes a remote call to the component at componentIndex
//
// An unknown component or function key is logged and dropped. Dispatch never fails the connection.
func (w *World) Dispatch(identity *NetworkIdentity, componentIndex int, key FunctionKey, kind proto.CallKind, r *netutil.NetReader) bool {
	if componentIndex < 0 || componentIndex >= len(identity.components) {
		w.protocolInconsistency(identity, "%s %d: component index %d out of range (%d components)", kind, key, componentIndex, len(identity.components))
		return false
	}

	c := identity.components[componentIndex]
	var handled bool
	if err := gwutils.CatchPanic(func() { handled = c.Invoke(key, kind, r) }); err != nil {
		identity.componentFault(componentIndex, "Invoke "+kind.String(), err)
		return false
	}
	if !handled {
		gwlog.Errorf("%s: component %d has no %s handler for function key %d", identity, componentIndex, kind, key)
		return false
	}
	return true
}

// SendCommand calls a command of identity on the server
//
// In host mode the command is dispatched immediately.
func (w *World) SendCommand(identity *NetworkIdentity, componentIndex int, key FunctionKey, args []byte) error {
	if identity.serverActive {
		w.Dispatch(identity, componentIndex, key, proto.CallCommand, netutil.NewNetReader(args))
		return nil
	}
	if w.serverConnection == nil {
		return errors.Wrapf(ErrConfiguration, "%s: no server connection to send command", identity)
	}
	msg := proto.CallMessage{NetID: identity.netID, ComponentIndex: int32(componentIndex), FunctionKey: uint32(key), Args: args}
	return w.serverConnection.Send(proto.MT_CALL_COMMAND, proto.Marshal(&msg))
}

// SendRPC calls a client-bound notification of identity on all observers
func (w *World) SendRPC(identity *NetworkIdentity, componentIndex int, key FunctionKey, args []byte) error {
	return w.sendToObserversCall(identity, proto.CallRPC, componentIndex, key, args)
}

// SendEvent broadcasts an event of identity to all observers
func (w *World) SendEvent(identity *NetworkIdentity, componentIndex int, key FunctionKey, args []byte) error {
	return w.sendToObserversCall(identity, proto.CallEvent, componentIndex, key, args)
}

func (w *World) sendToObserversCall(identity *NetworkIdentity, kind proto.CallKind, componentIndex int, key FunctionKey, args []byte) error {
	if !identity.serverActive {
		return errors.Wrapf(ErrNotServer, "%s %d of %s", kind, key, identity)
	}
	msg := proto.CallMessage{NetID: identity.netID, ComponentIndex: int32(componentIndex), FunctionKey: uint32(key), Args: args}
	w.SendToObservers(identity, kind.MsgType(), proto.Marshal(&msg))
	return nil
}
