package entity

import (
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwutils"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// RebuildObservers recomputes the observers of identity
//
// Components participating in OnRebuildObservers decide the candidates. Without participation,
// every ready connection (and the ready local connection) becomes a candidate on initialize,
// and nothing changes otherwise. Candidates that are not ready are skipped.
func (w *World) RebuildObservers(identity *NetworkIdentity, initialize bool) {
	if !identity.serverActive {
		gwlog.Warnf("%s: RebuildObservers on an object which is not server active", identity)
		return
	}

	newObservers := ConnectionSet{}
	participated := false
	components := make([]Behavior, len(identity.components))
	copy(components, identity.components)
	for i, c := range components {
		var p bool
		if err := gwutils.CatchPanic(func() { p = c.OnRebuildObservers(newObservers, initialize) }); err != nil {
			identity.componentFault(i, "OnRebuildObservers", err)
			continue
		}
		participated = participated || p
	}
	if !identity.serverActive {
		// destroyed by a component
		return
	}

	if !participated {
		if !initialize {
			return
		}
		for _, conn := range w.connections {
			if conn.ready {
				newObservers.Add(conn)
			}
		}
		if w.localConnection != nil && w.localConnection.ready {
			newObservers.Add(w.localConnection)
		}
	}

	for _, conn := range newObservers.ToList() {
		if !w.isRegistered(conn) {
			gwlog.Warnf("%s: observer candidate %s is not a connection of this world", identity, conn)
			continue
		}
		if !conn.ready {
			gwlog.Warnf("%s: observer candidate %s is not ready, skipped", identity, conn)
			continue
		}
		if initialize || !identity.observers.Contains(conn) {
			w.AddObserver(identity, conn)
		}
	}

	localHidden := false
	for _, conn := range identity.observers.ToList() {
		if !newObservers.Contains(conn) || !conn.ready {
			if w.RemoveObserver(identity, conn) && conn.isLocal {
				localHidden = true
			}
		}
	}

	// an object no host client observes is hidden locally, also on a dedicated server
	if initialize && !localHidden && identity.serverActive && (w.localConnection == nil || !identity.observers.Contains(w.localConnection)) {
		identity.callHooks("OnSetLocalVisibility", func(b Behavior) { b.OnSetLocalVisibility(false) })
	}

	if consts.DEBUG_OBSERVERS {
		gwlog.Debugf("%s: observers rebuilt: %v", identity, identity.observers.ToList())
	}
}

// AddObserver makes conn observe identity and spawns it on conn
func (w *World) AddObserver(identity *NetworkIdentity, conn *Connection) bool {
	if !identity.serverActive {
		gwlog.Warnf("%s: AddObserver %s on an object which is not server active", identity, conn)
		return false
	}
	if identity.observers.Contains(conn) {
		return false
	}

	identity.observers.Add(conn)
	conn.visibilityList.Add(identity)

	if conn.isLocal {
		identity.callHooks("OnSetLocalVisibility", func(b Behavior) { b.OnSetLocalVisibility(true) })
	} else {
		w.sendSpawn(identity, conn)
	}
	if identity.connectionOwner == conn {
		w.sendLocalPlayer(identity, conn)
	}
	return true
}

func (w *World) sendSpawn(identity *NetworkIdentity, conn *Connection) {
	msg := proto.SpawnMessage{
		NetID:   identity.netID,
		IsOwner: identity.owningConnection == conn,
		SceneID: identity.sceneID,
		AssetID: identity.assetID,
	}
	if payload, ok := w.SerializeDelta(identity, true); ok {
		msg.Payload = payload
	}
	conn.Send(proto.MT_OBJECT_SPAWN, proto.Marshal(&msg))
}

// RemoveObserver stops conn from observing identity and hides it on conn
func (w *World) RemoveObserver(identity *NetworkIdentity, conn *Connection) bool {
	if !w.unlinkObserver(identity, conn) {
		return false
	}
	if conn.isLocal {
		identity.callHooks("OnSetLocalVisibility", func(b Behavior) { b.OnSetLocalVisibility(false) })
	} else {
		conn.Send(proto.MT_OBJECT_HIDE, proto.Marshal(&proto.DestroyMessage{NetID: identity.netID}))
	}
	return true
}

// ClearObservers removes all observers of identity without notifying them
func (w *World) ClearObservers(identity *NetworkIdentity) {
	for _, conn := range identity.observers.ToList() {
		w.unlinkObserver(identity, conn)
	}
}

// unlinkObserver removes both directions of the observer relation
func (w *World) unlinkObserver(identity *NetworkIdentity, conn *Connection) bool {
	if !identity.observers.Contains(conn) {
		conn.visibilityList.Del(identity)
		return false
	}
	identity.observers.Del(conn)
	conn.visibilityList.Del(identity)
	return true
}
