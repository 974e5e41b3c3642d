package entity

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// Behavior is the capability interface of a replicated component
//
// Every Behavior must embed NetworkBehavior, which provides defaults for all hooks.
type Behavior interface {
	// Serialization
	Serialize(w *netutil.NetWriter, initial bool) error // Write the component state, all of it if initial
	Deserialize(r *netutil.NetReader, initial bool) error
	IsDirty() bool
	ClearDirtyBits()

	// Lifecycle
	OnStartServer()
	OnStartClient()
	OnStartAuthority()
	OnStopAuthority()
	OnStartLocalPlayer()
	OnNetworkDestroy()

	// Visibility
	OnSetLocalVisibility(visible bool)
	OnCheckObserver(conn *Connection) bool                           // Return if conn may observe this object when it becomes ready
	OnRebuildObservers(observers ConnectionSet, initialize bool) bool // Add candidates to observers, return true to participate

	// Invoke a registered remote call, return false if no handler matches
	Invoke(key FunctionKey, kind proto.CallKind, r *netutil.NetReader) bool

	base() *NetworkBehavior
}

// NetworkBehavior is the base of all behaviors
type NetworkBehavior struct {
	identity  *NetworkIdentity
	index     int
	dirtyBits uint64
	rpcDescs  rpcDescMap
}

func (nb *NetworkBehavior) base() *NetworkBehavior {
	return nb
}

// Identity returns the identity this behavior is attached to
func (nb *NetworkBehavior) Identity() *NetworkIdentity {
	return nb.identity
}

// ComponentIndex returns the index of the behavior in its identity
func (nb *NetworkBehavior) ComponentIndex() int {
	return nb.index
}

// NetID returns the network ID of the identity
func (nb *NetworkBehavior) NetID() common.NetID {
	if nb.identity == nil {
		return 0
	}
	return nb.identity.netID
}

// IsServer returns if the identity is active on the server
func (nb *NetworkBehavior) IsServer() bool {
	return nb.identity != nil && nb.identity.serverActive
}

// IsClient returns if the identity is active on a client
func (nb *NetworkBehavior) IsClient() bool {
	return nb.identity != nil && nb.identity.clientActive
}

// HasAuthority returns if this side has authority over the identity
func (nb *NetworkBehavior) HasAuthority() bool {
	return nb.identity != nil && nb.identity.hasAuthority
}

// IsLocalPlayer returns if the identity is the local player
func (nb *NetworkBehavior) IsLocalPlayer() bool {
	return nb.identity != nil && nb.identity.isLocalPlayer
}

// SetDirtyBit marks state bits as changed since last delta serialization
func (nb *NetworkBehavior) SetDirtyBit(mask uint64) {
	nb.dirtyBits |= mask
}

// DirtyBits returns the changed state bits
func (nb *NetworkBehavior) DirtyBits() uint64 {
	return nb.dirtyBits
}

// IsDirty returns if any state bit is changed
func (nb *NetworkBehavior) IsDirty() bool {
	return nb.dirtyBits != 0
}

// ClearDirtyBits clears all state bits
func (nb *NetworkBehavior) ClearDirtyBits() {
	nb.dirtyBits = 0
}

// Serialize writes nothing by default
func (nb *NetworkBehavior) Serialize(w *netutil.NetWriter, initial bool) error {
	return nil
}

// Deserialize reads nothing by default
func (nb *NetworkBehavior) Deserialize(r *netutil.NetReader, initial bool) error {
	return nil
}

// OnStartServer is called when the identity becomes active on the server
func (nb *NetworkBehavior) OnStartServer() {}

// OnStartClient is called when the identity becomes active on a client
func (nb *NetworkBehavior) OnStartClient() {}

// OnStartAuthority is called when this side gains authority
func (nb *NetworkBehavior) OnStartAuthority() {}

// OnStopAuthority is called when this side loses authority
func (nb *NetworkBehavior) OnStopAuthority() {}

// OnStartLocalPlayer is called when the identity becomes the local player
func (nb *NetworkBehavior) OnStartLocalPlayer() {}

// OnNetworkDestroy is called when the identity is deactivated
func (nb *NetworkBehavior) OnNetworkDestroy() {}

// OnSetLocalVisibility is called when the host client starts or stops observing the identity
func (nb *NetworkBehavior) OnSetLocalVisibility(visible bool) {}

// OnCheckObserver accepts every connection by default
func (nb *NetworkBehavior) OnCheckObserver(conn *Connection) bool {
	return true
}

// OnRebuildObservers does not participate by default
func (nb *NetworkBehavior) OnRebuildObservers(observers ConnectionSet, initialize bool) bool {
	return false
}

// RegisterCommand registers a server-bound call handler
func (nb *NetworkBehavior) RegisterCommand(name string, handler CallHandler) FunctionKey {
	return nb.register(name, proto.CallCommand, handler)
}

// RegisterRPC registers a client-bound call handler
func (nb *NetworkBehavior) RegisterRPC(name string, handler CallHandler) FunctionKey {
	return nb.register(name, proto.CallRPC, handler)
}

// RegisterEvent registers an event handler
func (nb *NetworkBehavior) RegisterEvent(name string, handler CallHandler) FunctionKey {
	return nb.register(name, proto.CallEvent, handler)
}

func (nb *NetworkBehavior) register(name string, kind proto.CallKind, handler CallHandler) FunctionKey {
	if nb.rpcDescs == nil {
		nb.rpcDescs = rpcDescMap{}
	}
	return nb.rpcDescs.register(name, kind, handler)
}

// Invoke calls the handler registered for key and kind
func (nb *NetworkBehavior) Invoke(key FunctionKey, kind proto.CallKind, r *netutil.NetReader) bool {
	desc := nb.rpcDescs.get(key, kind)
	if desc == nil {
		return false
	}
	if err := desc.Handler(r); err != nil {
		gwlog.Errorf("%s: component %d %s %s failed: %v", nb.identity, nb.index, kind, desc.Name, err)
	}
	return true
}

// CallCommand calls a command on the server
func (nb *NetworkBehavior) CallCommand(name string, args ...interface{}) error {
	return nb.call(proto.CallCommand, name, args)
}

// CallRPC calls a client-bound notification on all observers
func (nb *NetworkBehavior) CallRPC(name string, args ...interface{}) error {
	return nb.call(proto.CallRPC, name, args)
}

// CallEvent broadcasts an event to all observers
func (nb *NetworkBehavior) CallEvent(name string, args ...interface{}) error {
	return nb.call(proto.CallEvent, name, args)
}

func (nb *NetworkBehavior) call(kind proto.CallKind, name string, args []interface{}) error {
	identity := nb.identity
	if identity == nil || identity.world == nil {
		return errors.Wrapf(ErrConfiguration, "call %s: behavior is not spawned", name)
	}
	data, err := PackArgs(args...)
	if err != nil {
		return err
	}
	key := GetFunctionKey(name)
	switch kind {
	case proto.CallCommand:
		return identity.world.SendCommand(identity, nb.index, key, data)
	case proto.CallRPC:
		return identity.world.SendRPC(identity, nb.index, key, data)
	default:
		return identity.world.SendEvent(identity, nb.index, key, data)
	}
}
