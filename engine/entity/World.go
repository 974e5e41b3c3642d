package entity

import (
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/config"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwvar"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/opmon"
	"github.com/xiaonanln/gwrepl/engine/post"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// WorldOptions configures a World
type WorldOptions struct {
	// LocalPlayerAuthority grants authority to an object when it becomes the local player
	LocalPlayerAuthority bool
	// HostClient makes the world a host: objects activated on the server are also client active
	HostClient bool
	// WarnTickDuration is the Tick duration that logs a warning, 0 to disable
	WarnTickDuration time.Duration
}

// OptionsFromConfig returns WorldOptions read from the replication config
func OptionsFromConfig() WorldOptions {
	cfg := config.GetReplication()
	return WorldOptions{
		LocalPlayerAuthority: cfg.LocalPlayerAuthority,
		HostClient:           cfg.HostClient,
		WarnTickDuration:     cfg.WarnTickDuration,
	}
}

// IdentityFactory creates the identity of a template when a peer spawns it
type IdentityFactory func() *NetworkIdentity

// World owns all replication state of one server or client session
//
// World is not safe for concurrent use: all methods must be called on one logic goroutine.
// Use Post to schedule work from other goroutines.
type World struct {
	// OnClientAuthority is called when client authority is granted or revoked
	OnClientAuthority func(conn *Connection, identity *NetworkIdentity, granted bool)

	localPlayerAuthority bool
	hostClientActive     bool
	warnTickDuration     time.Duration

	lastNetID        common.NetID
	identities       IdentityMap
	connections      ConnectionSet
	localConnection  *Connection
	serverConnection *Connection

	writer        *netutil.NetWriter
	segmentWriter *netutil.NetWriter
	serializing   bool
	pendingResets []*NetworkIdentity
	postQueue     *post.Queue

	templates    map[common.AssetID]IdentityFactory
	sceneObjects map[common.SceneID]*NetworkIdentity
}

// NewWorld creates a World
func NewWorld(opts WorldOptions) *World {
	w := &World{
		localPlayerAuthority: opts.LocalPlayerAuthority,
		hostClientActive:     opts.HostClient,
		warnTickDuration:     opts.WarnTickDuration,
		identities:           IdentityMap{},
		connections:          ConnectionSet{},
		writer:               netutil.NewNetWriter(consts.SCRATCH_WRITER_INITIAL_CAP),
		segmentWriter:        netutil.NewNetWriter(consts.SCRATCH_WRITER_INITIAL_CAP),
		postQueue:            post.NewQueue(),
		templates:            map[common.AssetID]IdentityFactory{},
		sceneObjects:         map[common.SceneID]*NetworkIdentity{},
	}
	if opts.HostClient {
		w.SetLocalConnection()
	}
	return w
}

// HostClientActive returns if the world runs a client inside the host
func (w *World) HostClientActive() bool {
	return w.hostClientActive
}

// LocalPlayerAuthority returns if local players are granted authority
func (w *World) LocalPlayerAuthority() bool {
	return w.localPlayerAuthority
}

func (w *World) nextNetID() common.NetID {
	for {
		w.lastNetID++
		if !w.lastNetID.IsNil() && w.identities.Get(w.lastNetID) == nil {
			return w.lastNetID
		}
	}
}

// Identity returns the identity of network ID id, or nil
func (w *World) Identity(id common.NetID) *NetworkIdentity {
	return w.identities.Get(id)
}

// Identities returns all registered identities ordered by network ID
func (w *World) Identities() []*NetworkIdentity {
	return w.identities.ToList()
}

// Post schedules f to run at the next Tick, it is safe to call from any goroutine
func (w *World) Post(f post.PostCallback) {
	w.postQueue.Post(f)
}

func (w *World) bind(identity *NetworkIdentity) error {
	if identity.world != nil && identity.world != w {
		return errors.Wrapf(ErrConfiguration, "%s belongs to another world", identity)
	}
	identity.world = w
	return nil
}

// Spawn activates identity on the server and builds its observers
func (w *World) Spawn(identity *NetworkIdentity) error {
	return w.spawn(identity, false)
}

// SpawnWithNetID spawns identity keeping its preassigned network ID
func (w *World) SpawnWithNetID(identity *NetworkIdentity) error {
	return w.spawn(identity, true)
}

func (w *World) spawn(identity *NetworkIdentity, allowNonZeroID bool) error {
	if identity.resetPending {
		return errors.Wrapf(ErrConfiguration, "%s is waiting for reset", identity)
	}
	if err := w.bind(identity); err != nil {
		return err
	}
	if identity.serverActive {
		return nil
	}
	if err := identity.ActivateServer(allowNonZeroID); err != nil {
		return err
	}
	if !identity.serverActive {
		// destroyed by its own activation hooks
		return nil
	}
	if consts.DEBUG_SPAWN {
		gwlog.Debugf("%s: spawned", identity)
	}
	w.RebuildObservers(identity, true)
	return nil
}

// SpawnWithClientAuthority spawns identity and gives conn authority over it
func (w *World) SpawnWithClientAuthority(identity *NetworkIdentity, conn *Connection) error {
	if err := w.Spawn(identity); err != nil {
		return err
	}
	return w.AssignClientAuthority(identity, conn)
}

// Destroy destroys a spawned identity on the server and all its observers
//
// The identity is reset at the end of the current or next Tick.
func (w *World) Destroy(identity *NetworkIdentity) error {
	if !identity.serverActive || identity.world != w {
		return errors.Wrapf(ErrNotServer, "Destroy %s", identity)
	}

	w.SendToObservers(identity, proto.MT_OBJECT_DESTROY, proto.Marshal(&proto.DestroyMessage{NetID: identity.netID}))
	if owner := identity.owningConnection; owner != nil {
		owner.ownedObjects.Del(identity)
	}
	if owner := identity.connectionOwner; owner != nil && owner.playerObject == identity {
		owner.playerObject = nil
	}
	w.ClearObservers(identity)
	identity.Deactivate()
	w.identities.Del(identity.netID)
	identity.MarkReset()
	gwvar.SpawnedObjects.Add(-1)
	if consts.DEBUG_SPAWN {
		gwlog.Debugf("%s: destroyed", identity)
	}
	return nil
}

// Tick broadcasts delta payloads of dirty identities, runs posted callbacks and applies pending resets
func (w *World) Tick() {
	op := opmon.StartOperation("World.Tick")
	defer op.Finish(w.warnTickDuration)

	for _, identity := range w.identities.ToList() {
		if !identity.serverActive {
			continue
		}
		payload, ok := w.SerializeDelta(identity, false)
		if !ok {
			continue
		}
		msg := proto.UpdateVarsMessage{NetID: identity.netID, Payload: payload}
		if w.SendToObservers(identity, proto.MT_UPDATE_VARS, proto.Marshal(&msg)) > 0 {
			gwvar.DeltaMessagesSent.Add(1)
		}
	}

	w.postQueue.Tick()
	w.ApplyPendingResets()
}

// ApplyPendingResets resets every identity marked for reset
func (w *World) ApplyPendingResets() {
	for len(w.pendingResets) > 0 {
		resets := w.pendingResets
		w.pendingResets = nil
		for _, identity := range resets {
			identity.ApplyPendingReset()
		}
	}
}

// Client side

// SetServerConnection sets the connection to the server, returning the Connection wrapping it
func (w *World) SetServerConnection(transport netutil.MessageConnection) *Connection {
	w.serverConnection = newConnection(w, LOCAL_CONNECTION_ID, transport, false)
	return w.serverConnection
}

// ServerConnection returns the connection to the server, or nil
func (w *World) ServerConnection() *Connection {
	return w.serverConnection
}

// Ready tells the server to start replicating to this client
func (w *World) Ready() error {
	if w.serverConnection == nil {
		return errors.Wrap(ErrConfiguration, "no server connection")
	}
	return w.serverConnection.Send(proto.MT_READY, nil)
}

// RegisterTemplate registers the factory of objects spawned by asset ID
func (w *World) RegisterTemplate(assetID common.AssetID, factory IdentityFactory) {
	w.templates[assetID] = factory
}

// RegisterSceneObject registers an object placed in the scene, to be activated when the server spawns it
func (w *World) RegisterSceneObject(sceneID common.SceneID, identity *NetworkIdentity) error {
	if sceneID.IsNil() {
		return errors.Wrapf(ErrConfiguration, "%s: scene ID is nil", identity)
	}
	if err := w.bind(identity); err != nil {
		return err
	}
	identity.SetSceneID(sceneID)
	w.sceneObjects[sceneID] = identity
	return nil
}

// HandleMessage handles a message received from conn
//
// Malformed messages are logged and dropped.
func (w *World) HandleMessage(conn *Connection, msgtype proto.MsgType, payload []byte) {
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: recv %s len=%d", conn, proto.MsgTypeName(msgtype), len(payload))
	}

	fromServer := conn == w.serverConnection || conn.isLocal
	r := netutil.NewNetReader(payload)
	var err error
	switch msgtype {
	case proto.MT_READY:
		w.SetConnectionReady(conn)
	case proto.MT_NOT_READY:
		w.SetConnectionNotReady(conn)
	case proto.MT_CALL_COMMAND, proto.MT_CALL_RPC, proto.MT_CALL_EVENT:
		err = w.handleCall(conn, msgtype, r)
	case proto.MT_OBJECT_SPAWN:
		if fromServer {
			err = w.handleSpawn(r)
		}
	case proto.MT_UPDATE_VARS:
		if fromServer {
			err = w.handleUpdateVars(r)
		}
	case proto.MT_OBJECT_DESTROY, proto.MT_OBJECT_HIDE:
		if fromServer {
			err = w.handleDestroy(r)
		}
	case proto.MT_AUTHORITY_CHANGED:
		if fromServer {
			err = w.handleAuthorityChanged(r)
		}
	case proto.MT_LOCAL_PLAYER:
		if fromServer {
			err = w.handleLocalPlayer(r)
		}
	default:
		gwlog.Errorf("%s: unknown msgtype: %d", conn, msgtype)
		return
	}

	if err != nil {
		gwvar.ProtocolInconsistencies.Add(1)
		gwlog.Warnf("%s: handle %s failed: %v", conn, proto.MsgTypeName(msgtype), err)
	}
}

func (w *World) handleCall(conn *Connection, msgtype proto.MsgType, r *netutil.NetReader) error {
	kind, _ := proto.CallKindOf(msgtype)
	var msg proto.CallMessage
	if err := msg.Decode(r); err != nil {
		return err
	}
	identity := w.identities.Get(msg.NetID)
	if identity == nil {
		return errors.Wrapf(ErrProtocolInconsistency, "%s to unknown object %d", kind, msg.NetID)
	}
	if kind == proto.CallCommand {
		if !identity.serverActive {
			return errors.Wrapf(ErrProtocolInconsistency, "command to %s which is not server active", identity)
		}
		if !conn.isLocal && identity.owningConnection != conn && identity.connectionOwner != conn {
			return errors.Wrapf(ErrProtocolInconsistency, "command to %s from %s which does not own it", identity, conn)
		}
	} else if conn != w.serverConnection && !conn.isLocal {
		return errors.Wrapf(ErrProtocolInconsistency, "%s to %s from a client", kind, identity)
	}
	w.Dispatch(identity, int(msg.ComponentIndex), FunctionKey(msg.FunctionKey), kind, netutil.NewNetReader(msg.Args))
	return nil
}

func (w *World) handleSpawn(r *netutil.NetReader) error {
	var msg proto.SpawnMessage
	if err := msg.Decode(r); err != nil {
		return err
	}

	identity := w.identities.Get(msg.NetID)
	if identity != nil && identity.serverActive {
		// host shares the object with the server
		return nil
	}
	if identity == nil {
		var err error
		if identity, err = w.instantiate(&msg); err != nil {
			return err
		}
		identity.netID = msg.NetID
		w.identities.Add(identity)
	}

	if err := w.DeserializeDelta(identity, netutil.NewNetReader(msg.Payload), true); err != nil {
		gwlog.Warnf("%s: initial state is partially applied: %v", identity, err)
	}
	identity.ActivateClient()
	if msg.IsOwner {
		identity.ForceAuthority(true)
	}
	return nil
}

func (w *World) instantiate(msg *proto.SpawnMessage) (*NetworkIdentity, error) {
	var identity *NetworkIdentity
	if !msg.SceneID.IsNil() {
		identity = w.sceneObjects[msg.SceneID]
		if identity == nil {
			return nil, errors.Wrapf(ErrProtocolInconsistency, "spawn %d: unknown scene object %d", msg.NetID, msg.SceneID)
		}
		if identity.resetPending {
			identity.ApplyPendingReset()
		}
		if identity.clientActive {
			return nil, errors.Wrapf(ErrProtocolInconsistency, "spawn %d: scene object %d is already spawned as %s", msg.NetID, msg.SceneID, identity)
		}
	} else {
		factory := w.templates[msg.AssetID]
		if factory == nil {
			return nil, errors.Wrapf(ErrProtocolInconsistency, "spawn %d: unknown asset %s", msg.NetID, msg.AssetID)
		}
		identity = factory()
		if identity == nil {
			return nil, errors.Wrapf(ErrConfiguration, "spawn %d: factory of asset %s returns nil", msg.NetID, msg.AssetID)
		}
		identity.SetAssetID(msg.AssetID)
	}
	if err := w.bind(identity); err != nil {
		return nil, err
	}
	if len(identity.components) > consts.MAX_COMPONENTS {
		return nil, errors.Wrapf(ErrConfiguration, "spawn %s: %d components exceeds the limit %d", identity, len(identity.components), consts.MAX_COMPONENTS)
	}
	return identity, nil
}

func (w *World) clientIdentity(id common.NetID) (*NetworkIdentity, error) {
	identity := w.identities.Get(id)
	if identity == nil {
		return nil, errors.Wrapf(ErrProtocolInconsistency, "unknown object %d", id)
	}
	return identity, nil
}

func (w *World) handleUpdateVars(r *netutil.NetReader) error {
	var msg proto.UpdateVarsMessage
	if err := msg.Decode(r); err != nil {
		return err
	}
	identity, err := w.clientIdentity(msg.NetID)
	if err != nil {
		return err
	}
	if identity.serverActive {
		return nil
	}
	return w.DeserializeDelta(identity, netutil.NewNetReader(msg.Payload), false)
}

func (w *World) handleDestroy(r *netutil.NetReader) error {
	var msg proto.DestroyMessage
	if err := msg.Decode(r); err != nil {
		return err
	}
	identity, err := w.clientIdentity(msg.NetID)
	if err != nil {
		return err
	}
	if identity.serverActive {
		return nil
	}
	identity.Deactivate()
	w.identities.Del(identity.netID)
	identity.MarkReset()
	return nil
}

func (w *World) handleAuthorityChanged(r *netutil.NetReader) error {
	var msg proto.AuthorityMessage
	if err := msg.Decode(r); err != nil {
		return err
	}
	identity, err := w.clientIdentity(msg.NetID)
	if err != nil {
		return err
	}
	if identity.serverActive {
		gwlog.Warnf("%s: ignore authority change of a server active object", identity)
		return nil
	}
	identity.ForceAuthority(msg.Granted)
	return nil
}

func (w *World) handleLocalPlayer(r *netutil.NetReader) error {
	var msg proto.LocalPlayerMessage
	if err := msg.Decode(r); err != nil {
		return err
	}
	identity, err := w.clientIdentity(msg.NetID)
	if err != nil {
		return err
	}
	identity.BecomeLocalPlayer()
	return nil
}
