package entity

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwutils"
	"github.com/xiaonanln/gwrepl/engine/gwvar"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// LOCAL_CONNECTION_ID is the ID of the host client connection
const LOCAL_CONNECTION_ID common.ConnectionID = 0

// Connection is a peer of the world
//
// The local connection represents the client running inside the host. It shares object
// instances with the server, so replication traffic and authority notifications to it are
// dropped. Calls are delivered to the world directly.
type Connection struct {
	ID common.ConnectionID

	world          *World
	transport      netutil.MessageConnection
	isLocal        bool
	ready          bool
	ownedObjects   IdentitySet
	visibilityList IdentitySet
	playerObject   *NetworkIdentity
}

func newConnection(w *World, id common.ConnectionID, transport netutil.MessageConnection, isLocal bool) *Connection {
	return &Connection{
		ID:             id,
		world:          w,
		transport:      transport,
		isLocal:        isLocal,
		ownedObjects:   IdentitySet{},
		visibilityList: IdentitySet{},
	}
}

func (conn *Connection) String() string {
	if conn == nil {
		return "Connection<nil>"
	}
	if conn.isLocal {
		return "Connection<local>"
	}
	return fmt.Sprintf("Connection<%d>", conn.ID)
}

// IsReady returns if the connection receives replication
func (conn *Connection) IsReady() bool {
	return conn.ready
}

// IsLocal returns if the connection is the host client
func (conn *Connection) IsLocal() bool {
	return conn.isLocal
}

// PlayerObject returns the player object of the connection, or nil
func (conn *Connection) PlayerObject() *NetworkIdentity {
	return conn.playerObject
}

// OwnedObjects returns objects the connection holds client authority over
func (conn *Connection) OwnedObjects() []*NetworkIdentity {
	return conn.ownedObjects.ToList()
}

// Owns returns if the connection holds client authority over identity
func (conn *Connection) Owns(identity *NetworkIdentity) bool {
	return conn.ownedObjects.Contains(identity)
}

// VisibleObjects returns objects the connection observes
func (conn *Connection) VisibleObjects() []*NetworkIdentity {
	return conn.visibilityList.ToList()
}

// IsObserving returns if the connection observes identity
func (conn *Connection) IsObserving(identity *NetworkIdentity) bool {
	return conn.visibilityList.Contains(identity)
}

// Transport returns the underlying message connection, nil for the local connection
func (conn *Connection) Transport() netutil.MessageConnection {
	return conn.transport
}

// Send sends a message to the peer
func (conn *Connection) Send(msgtype proto.MsgType, payload []byte) error {
	if conn.isLocal {
		conn.deliverLocal(msgtype, payload)
		return nil
	}
	if conn.transport == nil {
		return errors.Wrapf(ErrInvalidConnection, "%s has no transport", conn)
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send %s len=%d", conn, proto.MsgTypeName(msgtype), len(payload))
	}
	if err := conn.transport.SendMessage(msgtype, payload); err != nil {
		gwlog.Warnf("%s: send %s failed: %v", conn, proto.MsgTypeName(msgtype), err)
		return err
	}
	return nil
}

func (conn *Connection) deliverLocal(msgtype proto.MsgType, payload []byte) {
	switch msgtype {
	case proto.MT_CALL_COMMAND, proto.MT_CALL_RPC, proto.MT_CALL_EVENT:
		conn.world.HandleMessage(conn, msgtype, payload)
	}
}

// AddConnection registers a remote connection
func (w *World) AddConnection(id common.ConnectionID, transport netutil.MessageConnection) (*Connection, error) {
	if id == LOCAL_CONNECTION_ID {
		return nil, errors.Wrapf(ErrInvalidConnection, "connection ID %d is reserved", id)
	}
	if w.connections.Get(id) != nil {
		return nil, errors.Wrapf(ErrInvalidConnection, "connection %d already exists", id)
	}
	conn := newConnection(w, id, transport, false)
	w.connections.Add(conn)
	gwvar.ConnectionCount.Add(1)
	return conn, nil
}

// RemoveConnection unregisters a connection
//
// The connection stops observing every object, loses authority of every owned object,
// and its player object is destroyed.
func (w *World) RemoveConnection(conn *Connection) {
	if !w.isRegistered(conn) {
		return
	}

	for _, identity := range conn.visibilityList.ToList() {
		w.unlinkObserver(identity, conn)
	}
	for _, identity := range conn.ownedObjects.ToList() {
		if identity.owningConnection == conn {
			identity.owningConnection = nil
			identity.ForceAuthority(true)
			w.notifyClientAuthority(conn, identity, false)
		}
		conn.ownedObjects.Del(identity)
	}
	if player := conn.playerObject; player != nil {
		if player.serverActive {
			if err := w.Destroy(player); err != nil {
				gwlog.Errorf("%s: destroy player %s failed: %v", conn, player, err)
			}
		}
		conn.playerObject = nil
	}
	conn.ready = false

	if conn.isLocal {
		w.localConnection = nil
	} else {
		w.connections.Del(conn)
		gwvar.ConnectionCount.Add(-1)
	}
}

// Connection returns the registered connection of id
func (w *World) Connection(id common.ConnectionID) *Connection {
	if id == LOCAL_CONNECTION_ID {
		return w.localConnection
	}
	return w.connections.Get(id)
}

// Connections returns remote connections ordered by ID
func (w *World) Connections() []*Connection {
	return w.connections.ToList()
}

// LocalConnection returns the host client connection, nil if not in host mode
func (w *World) LocalConnection() *Connection {
	return w.localConnection
}

// SetLocalConnection creates the host client connection
func (w *World) SetLocalConnection() *Connection {
	if w.localConnection == nil {
		w.localConnection = newConnection(w, LOCAL_CONNECTION_ID, nil, true)
	}
	return w.localConnection
}

func (w *World) isRegistered(conn *Connection) bool {
	if conn == nil || conn.world != w {
		return false
	}
	if conn.isLocal {
		return conn == w.localConnection
	}
	return w.connections.Contains(conn)
}

// SetConnectionReady makes conn receive replication
//
// conn starts observing every server active object whose components all accept it.
func (w *World) SetConnectionReady(conn *Connection) {
	if !w.isRegistered(conn) || conn.ready {
		return
	}
	conn.ready = true

	for _, identity := range w.identities.ToList() {
		if !identity.serverActive || !w.checkObserver(identity, conn) {
			continue
		}
		w.AddObserver(identity, conn)
	}
}

func (w *World) checkObserver(identity *NetworkIdentity, conn *Connection) bool {
	for i, c := range identity.components {
		var ok bool
		if err := gwutils.CatchPanic(func() { ok = c.OnCheckObserver(conn) }); err != nil {
			identity.componentFault(i, "OnCheckObserver", err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// SetConnectionNotReady stops conn from receiving replication
func (w *World) SetConnectionNotReady(conn *Connection) {
	if !w.isRegistered(conn) || !conn.ready {
		return
	}
	conn.ready = false
	for _, identity := range conn.visibilityList.ToList() {
		w.unlinkObserver(identity, conn)
	}
}

// SendToObservers sends a message to every observer of identity, returning the number of connections sent to
func (w *World) SendToObservers(identity *NetworkIdentity, msgtype proto.MsgType, payload []byte) int {
	n := 0
	for _, conn := range identity.observers.ToList() {
		if conn.Send(msgtype, payload) == nil {
			n++
		}
	}
	return n
}

// AddPlayerForConnection makes identity the player object of conn, spawning it if necessary
func (w *World) AddPlayerForConnection(conn *Connection, identity *NetworkIdentity) error {
	if !w.isRegistered(conn) {
		return errors.Wrapf(ErrInvalidConnection, "add player %s", identity)
	}
	if conn.playerObject != nil {
		return errors.Wrapf(ErrConfiguration, "%s already has player %s", conn, conn.playerObject)
	}
	if identity.connectionOwner != nil {
		return errors.Wrapf(ErrConfiguration, "%s is already the player of %s", identity, identity.connectionOwner)
	}

	identity.connectionOwner = conn
	conn.playerObject = identity
	if !identity.serverActive {
		if err := w.Spawn(identity); err != nil {
			identity.connectionOwner = nil
			conn.playerObject = nil
			return err
		}
		return nil
	}

	if identity.LocalPlayerAuthority && !conn.isLocal {
		// the client takes authority when it becomes the local player
		identity.ForceAuthority(false)
	}
	if conn.IsObserving(identity) {
		w.sendLocalPlayer(identity, conn)
	}
	return nil
}

func (w *World) sendLocalPlayer(identity *NetworkIdentity, conn *Connection) {
	if conn.isLocal {
		identity.BecomeLocalPlayer()
		return
	}
	conn.Send(proto.MT_LOCAL_PLAYER, proto.Marshal(&proto.LocalPlayerMessage{NetID: identity.netID}))
}
