package entity

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwutils"
	"github.com/xiaonanln/gwrepl/engine/gwvar"
)

// NetworkIdentity is the network-level identity of a replicated object
//
// An identity is Inert after creation. It becomes server active when spawned by a World,
// client active when spawned by a peer (or immediately in host mode), and returns to Inert
// only after destruction and an explicit reset.
type NetworkIdentity struct {
	TypeName string
	// LocalPlayerAuthority is the ownership model: clients may hold authority over the object
	LocalPlayerAuthority bool

	world   *World
	netID   common.NetID
	sceneID common.SceneID
	assetID common.AssetID

	serverActive  bool
	clientActive  bool
	isLocalPlayer bool
	hasAuthority  bool

	owningConnection *Connection // connection holding client authority
	connectionOwner  *Connection // connection whose player object this is

	components []Behavior
	captured   bool
	observers  ConnectionSet

	resetPending bool
}

// NewNetworkIdentity creates an Inert identity with components
func NewNetworkIdentity(typeName string, components ...Behavior) *NetworkIdentity {
	identity := &NetworkIdentity{
		TypeName: typeName,
	}
	for _, c := range components {
		identity.attach(c)
	}
	return identity
}

func (identity *NetworkIdentity) String() string {
	if identity == nil {
		return "NetworkIdentity<nil>"
	}
	return fmt.Sprintf("%s<%d>", identity.TypeName, identity.netID)
}

// AddBehavior adds a component, which is refused once components are captured by activation
func (identity *NetworkIdentity) AddBehavior(b Behavior) error {
	if identity.captured {
		return errors.Wrapf(ErrConfiguration, "%s: components are fixed after activation", identity)
	}
	identity.attach(b)
	return nil
}

func (identity *NetworkIdentity) attach(b Behavior) {
	nb := b.base()
	nb.identity = identity
	nb.index = len(identity.components)
	identity.components = append(identity.components, b)
}

// Components returns the components in index order
func (identity *NetworkIdentity) Components() []Behavior {
	return identity.components
}

// NetID returns the network ID, 0 if not assigned
func (identity *NetworkIdentity) NetID() common.NetID {
	return identity.netID
}

// SetNetID assigns the network ID before server activation, which requires allowNonZeroID
func (identity *NetworkIdentity) SetNetID(id common.NetID) error {
	if identity.serverActive || identity.clientActive {
		return errors.Wrapf(ErrConfiguration, "%s: can not change network ID of an active object", identity)
	}
	identity.netID = id
	return nil
}

// SceneID returns the scene placement key
func (identity *NetworkIdentity) SceneID() common.SceneID {
	return identity.sceneID
}

// AssetID returns the template key
func (identity *NetworkIdentity) AssetID() common.AssetID {
	return identity.assetID
}

// SetSceneID sets the scene placement key and clears the template key
func (identity *NetworkIdentity) SetSceneID(id common.SceneID) {
	identity.sceneID = id
	identity.assetID = ""
}

// SetAssetID sets the template key and clears the scene placement key
func (identity *NetworkIdentity) SetAssetID(id common.AssetID) {
	identity.assetID = id
	identity.sceneID = 0
}

// World returns the world the identity is bound to
func (identity *NetworkIdentity) World() *World {
	return identity.world
}

// IsServer returns if the identity is server active
func (identity *NetworkIdentity) IsServer() bool {
	return identity.serverActive
}

// IsClient returns if the identity is client active
func (identity *NetworkIdentity) IsClient() bool {
	return identity.clientActive
}

// IsLocalPlayer returns if the identity is the local player
func (identity *NetworkIdentity) IsLocalPlayer() bool {
	return identity.isLocalPlayer
}

// HasAuthority returns if this side has authority over the identity
func (identity *NetworkIdentity) HasAuthority() bool {
	return identity.hasAuthority
}

// IsResetPending returns if the identity is waiting for ApplyPendingReset
func (identity *NetworkIdentity) IsResetPending() bool {
	return identity.resetPending
}

// ClientAuthorityOwner returns the connection holding client authority, or nil
func (identity *NetworkIdentity) ClientAuthorityOwner() *Connection {
	return identity.owningConnection
}

// ConnectionOwner returns the connection whose player object this is, or nil
func (identity *NetworkIdentity) ConnectionOwner() *Connection {
	return identity.connectionOwner
}

// Observers returns the observing connections ordered by connection ID
func (identity *NetworkIdentity) Observers() []*Connection {
	return identity.observers.ToList()
}

// IsObservedBy returns if conn observes the identity
func (identity *NetworkIdentity) IsObservedBy(conn *Connection) bool {
	return identity.observers.Contains(conn)
}

// ActivateServer activates the identity on the server
//
// A zero network ID is assigned from the world counter. A preassigned one is accepted only if
// allowNonZeroID. Nothing is changed when activation fails.
func (identity *NetworkIdentity) ActivateServer(allowNonZeroID bool) error {
	if identity.serverActive {
		return nil
	}

	w := identity.world
	if w == nil {
		return errors.Wrapf(ErrConfiguration, "%s: not bound to a world", identity)
	}
	if len(identity.components) > consts.MAX_COMPONENTS {
		return errors.Wrapf(ErrConfiguration, "%s: %d components exceeds the limit %d", identity, len(identity.components), consts.MAX_COMPONENTS)
	}
	if !identity.netID.IsNil() {
		if !allowNonZeroID {
			return errors.Wrapf(ErrConfiguration, "%s: network ID is already assigned", identity)
		}
		if other := w.identities.Get(identity.netID); other != nil && other != identity {
			return errors.Wrapf(ErrConfiguration, "%s: network ID is used by another object", identity)
		}
	} else {
		identity.netID = w.nextNetID()
	}

	identity.captured = true
	identity.serverActive = true
	identity.observers = ConnectionSet{}
	w.identities.Add(identity)
	gwvar.SpawnedObjects.Add(1)
	// a player object whose client holds local authority is not server authoritative
	identity.hasAuthority = !(identity.LocalPlayerAuthority && identity.connectionOwner != nil)

	if consts.DEBUG_SPAWN {
		gwlog.Debugf("%s: server activated", identity)
	}
	identity.callHooks("OnStartServer", Behavior.OnStartServer)
	if !identity.serverActive {
		return nil
	}

	if w.hostClientActive {
		identity.ActivateClient()
	}
	if identity.hasAuthority {
		identity.callHooks("OnStartAuthority", Behavior.OnStartAuthority)
	}
	return nil
}

// ActivateClient activates the identity on a client
func (identity *NetworkIdentity) ActivateClient() {
	if identity.clientActive {
		return
	}
	identity.captured = true
	identity.clientActive = true
	if consts.DEBUG_SPAWN {
		gwlog.Debugf("%s: client activated", identity)
	}
	identity.callHooks("OnStartClient", Behavior.OnStartClient)
}

// ForceAuthority sets authority of this side and calls authority hooks when it changes
func (identity *NetworkIdentity) ForceAuthority(authority bool) {
	if identity.hasAuthority == authority {
		return
	}
	identity.hasAuthority = authority
	if consts.DEBUG_AUTHORITY {
		gwlog.Debugf("%s: authority = %v", identity, authority)
	}
	if authority {
		identity.callHooks("OnStartAuthority", Behavior.OnStartAuthority)
	} else {
		identity.callHooks("OnStopAuthority", Behavior.OnStopAuthority)
	}
}

// BecomeLocalPlayer makes the identity the local player of this side
//
// When the world grants local players authority and the object supports client authority,
// authority is taken here. Authority is set before any hook runs, so hooks that re-enter
// BecomeLocalPlayer or ForceAuthority do not fire OnStartAuthority again.
func (identity *NetworkIdentity) BecomeLocalPlayer() {
	if identity.isLocalPlayer {
		return
	}
	identity.isLocalPlayer = true

	grant := identity.world != nil && identity.world.localPlayerAuthority &&
		identity.LocalPlayerAuthority && !identity.hasAuthority
	if grant {
		identity.hasAuthority = true
		identity.callHooks("OnStartAuthority", Behavior.OnStartAuthority)
	}
	identity.callHooks("OnStartLocalPlayer", Behavior.OnStartLocalPlayer)
}

// Deactivate tears down the identity, calling OnNetworkDestroy in component order
func (identity *NetworkIdentity) Deactivate() {
	identity.callHooks("OnNetworkDestroy", Behavior.OnNetworkDestroy)
	identity.serverActive = false
	identity.clientActive = false
}

// MarkReset marks the identity to be reset by ApplyPendingReset
func (identity *NetworkIdentity) MarkReset() {
	if identity.resetPending {
		return
	}
	identity.resetPending = true
	if identity.world != nil {
		identity.world.pendingResets = append(identity.world.pendingResets, identity)
	}
}

// ApplyPendingReset returns the identity to Inert if a reset is pending
//
// Origin keys and components are kept so the object can be spawned again as a new logical entity.
func (identity *NetworkIdentity) ApplyPendingReset() bool {
	if !identity.resetPending {
		return false
	}
	identity.resetPending = false
	identity.netID = 0
	identity.serverActive = false
	identity.clientActive = false
	identity.isLocalPlayer = false
	identity.hasAuthority = false
	identity.owningConnection = nil
	identity.connectionOwner = nil
	identity.captured = false
	for _, conn := range identity.observers {
		conn.visibilityList.Del(identity)
	}
	identity.observers = nil
	return true
}

// callHooks calls hook on a snapshot of components, isolating failures of each component
func (identity *NetworkIdentity) callHooks(hook string, f func(b Behavior)) {
	components := make([]Behavior, len(identity.components))
	copy(components, identity.components)

	for i, c := range components {
		if err := gwutils.CatchPanic(func() { f(c) }); err != nil {
			identity.componentFault(i, hook, err)
		}
	}
}

func (identity *NetworkIdentity) componentFault(index int, what string, err error) error {
	gwvar.ComponentFaults.Add(1)
	err = errors.Wrapf(ErrComponentFault, "%s: component %d %s: %v", identity, index, what, err)
	gwlog.Errorf("%v", err)
	return err
}
