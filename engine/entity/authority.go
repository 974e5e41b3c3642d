package entity

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// AssignClientAuthority gives conn authority over identity
//
// The checks run in order: server active, ownership model, existing owner, connection.
// A failed check changes nothing and sends nothing.
func (w *World) AssignClientAuthority(identity *NetworkIdentity, conn *Connection) error {
	if !identity.serverActive {
		return errors.Wrapf(ErrNotServer, "AssignClientAuthority %s", identity)
	}
	if !identity.LocalPlayerAuthority {
		return errors.Wrapf(ErrUnsupportedConfiguration, "AssignClientAuthority %s", identity)
	}
	if identity.owningConnection != nil && identity.owningConnection != conn {
		return errors.Wrapf(ErrAlreadyOwned, "AssignClientAuthority %s: owned by %s", identity, identity.owningConnection)
	}
	if conn == nil || !w.isRegistered(conn) {
		return errors.Wrapf(ErrInvalidConnection, "AssignClientAuthority %s: %s", identity, conn)
	}
	if identity.owningConnection == conn {
		return nil
	}

	identity.owningConnection = conn
	conn.ownedObjects.Add(identity)
	if !conn.isLocal {
		// the host client shares the instance and keeps authority
		identity.ForceAuthority(false)
	}

	conn.Send(proto.MT_AUTHORITY_CHANGED, proto.Marshal(&proto.AuthorityMessage{NetID: identity.netID, Granted: true}))
	w.notifyClientAuthority(conn, identity, true)
	return nil
}

// RemoveClientAuthority takes authority over identity back from conn
//
// The checks run in order: server active, player object, owner exists, owner is conn.
// A failed check changes nothing and sends nothing.
func (w *World) RemoveClientAuthority(identity *NetworkIdentity, conn *Connection) error {
	if !identity.serverActive {
		return errors.Wrapf(ErrNotServer, "RemoveClientAuthority %s", identity)
	}
	if identity.connectionOwner != nil {
		return errors.Wrapf(ErrIsPlayerObject, "RemoveClientAuthority %s: player of %s", identity, identity.connectionOwner)
	}
	if identity.owningConnection == nil {
		return errors.Wrapf(ErrNoOwner, "RemoveClientAuthority %s", identity)
	}
	if identity.owningConnection != conn {
		return errors.Wrapf(ErrWrongOwner, "RemoveClientAuthority %s: owned by %s, not %s", identity, identity.owningConnection, conn)
	}

	identity.owningConnection = nil
	conn.ownedObjects.Del(identity)
	identity.ForceAuthority(true)

	conn.Send(proto.MT_AUTHORITY_CHANGED, proto.Marshal(&proto.AuthorityMessage{NetID: identity.netID, Granted: false}))
	w.notifyClientAuthority(conn, identity, false)
	return nil
}

func (w *World) notifyClientAuthority(conn *Connection, identity *NetworkIdentity, granted bool) {
	if consts.DEBUG_AUTHORITY {
		gwlog.Debugf("%s: client authority of %s granted=%v", identity, conn, granted)
	}
	if w.OnClientAuthority != nil {
		w.OnClientAuthority(conn, identity, granted)
	}
}
