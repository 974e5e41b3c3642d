package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

// filterBehavior decides observers by a candidate list
type filterBehavior struct {
	NetworkBehavior
	participate bool
	candidates  []*Connection
	banned      *Connection
}

func (b *filterBehavior) OnRebuildObservers(observers ConnectionSet, initialize bool) bool {
	if !b.participate {
		return false
	}
	for _, conn := range b.candidates {
		observers.Add(conn)
	}
	return true
}

func (b *filterBehavior) OnCheckObserver(conn *Connection) bool {
	return conn != b.banned
}

func TestSpawnIsObservedByReadyConnections(t *testing.T) {
	w := newTestWorld()
	c1, t1 := addConn(t, w, 1)
	c2, t2 := addConn(t, w, 2)
	w.SetConnectionReady(c1)

	identity, b := newTestIdentity(1)
	identity.SetAssetID("tank")
	b[0].Value = 5
	require.NoError(t, w.Spawn(identity))

	assert.Equal(t, []*Connection{c1}, identity.Observers())
	assert.True(t, c1.IsObserving(identity))
	assert.Equal(t, 1, t1.count(proto.MT_OBJECT_SPAWN))
	assert.Equal(t, 0, t2.count(proto.MT_OBJECT_SPAWN))

	var msg proto.SpawnMessage
	require.NoError(t, proto.Unmarshal(t1.last(proto.MT_OBJECT_SPAWN), &msg))
	assert.Equal(t, identity.NetID(), msg.NetID)
	assert.Equal(t, common.AssetID("tank"), msg.AssetID)
	assert.False(t, msg.IsOwner)
	r := netutil.NewNetReader(msg.Payload)
	assert.Equal(t, uint64(1), r.ReadUvarint())
	assert.Equal(t, uint32(4), r.ReadUint32())
	assert.Equal(t, int32(5), r.ReadInt32())

	w.SetConnectionReady(c2)
	assert.Equal(t, []*Connection{c1, c2}, identity.Observers())
	assert.Equal(t, 1, t2.count(proto.MT_OBJECT_SPAWN))
	requireObserverConsistency(t, w)

	// rebuilding without participation changes nothing
	w.RebuildObservers(identity, false)
	assert.Equal(t, []*Connection{c1, c2}, identity.Observers())
	assert.Equal(t, 1, t1.count(proto.MT_OBJECT_SPAWN))
}

func TestRebuildObserversWithParticipation(t *testing.T) {
	w := newTestWorld()
	c1, t1 := addConn(t, w, 1)
	c2, t2 := addConn(t, w, 2)
	c3, t3 := addConn(t, w, 3)
	w.SetConnectionReady(c1)
	w.SetConnectionReady(c2)

	filter := &filterBehavior{participate: true, candidates: []*Connection{c1, c3}}
	identity := NewNetworkIdentity("Filtered", filter)
	require.NoError(t, w.Spawn(identity))

	assert.Equal(t, []*Connection{c1}, identity.Observers())
	assert.Equal(t, 0, t2.count(proto.MT_OBJECT_SPAWN))
	assert.Equal(t, 0, t3.count(proto.MT_OBJECT_SPAWN))

	filter.candidates = []*Connection{c2}
	w.RebuildObservers(identity, false)
	assert.Equal(t, []*Connection{c2}, identity.Observers())
	assert.Equal(t, 1, t1.count(proto.MT_OBJECT_HIDE))
	assert.Equal(t, 1, t2.count(proto.MT_OBJECT_SPAWN))
	assert.False(t, c1.IsObserving(identity))
	requireObserverConsistency(t, w)

	// a connection of another world is never added
	stranger, _ := addConn(t, newTestWorld(), 4)
	filter.candidates = []*Connection{c2, stranger}
	w.RebuildObservers(identity, false)
	assert.Equal(t, []*Connection{c2}, identity.Observers())
}

func TestCheckObserverWhenReady(t *testing.T) {
	w := newTestWorld()
	c1, t1 := addConn(t, w, 1)
	c2, _ := addConn(t, w, 2)

	filter := &filterBehavior{banned: c1}
	identity := NewNetworkIdentity("Checked", filter)
	require.NoError(t, w.Spawn(identity))

	w.SetConnectionReady(c1)
	w.SetConnectionReady(c2)
	assert.Equal(t, []*Connection{c2}, identity.Observers())
	assert.Equal(t, 0, t1.count(proto.MT_OBJECT_SPAWN))
}

func TestSetConnectionNotReady(t *testing.T) {
	w := newTestWorld()
	c1, t1 := addConn(t, w, 1)
	w.SetConnectionReady(c1)

	a, _ := newTestIdentity(1)
	b, _ := newTestIdentity(1)
	require.NoError(t, w.Spawn(a))
	require.NoError(t, w.Spawn(b))
	assert.Len(t, c1.VisibleObjects(), 2)

	sent := len(t1.sent)
	w.SetConnectionNotReady(c1)
	assert.False(t, c1.IsReady())
	assert.Empty(t, c1.VisibleObjects())
	assert.Empty(t, a.Observers())
	assert.Empty(t, b.Observers())
	assert.Equal(t, sent, len(t1.sent))
	requireObserverConsistency(t, w)
}

func TestRemoveObserverHides(t *testing.T) {
	w := newTestWorld()
	c1, t1 := addConn(t, w, 1)
	w.SetConnectionReady(c1)

	identity, _ := newTestIdentity(1)
	require.NoError(t, w.Spawn(identity))
	assert.True(t, w.RemoveObserver(identity, c1))
	assert.False(t, w.RemoveObserver(identity, c1))
	assert.Equal(t, 1, t1.count(proto.MT_OBJECT_HIDE))

	var msg proto.DestroyMessage
	require.NoError(t, proto.Unmarshal(t1.last(proto.MT_OBJECT_HIDE), &msg))
	assert.Equal(t, identity.NetID(), msg.NetID)
	requireObserverConsistency(t, w)
}

func TestLocalConnectionVisibility(t *testing.T) {
	w := NewWorld(WorldOptions{LocalPlayerAuthority: true, HostClient: true})
	local := w.LocalConnection()

	identity, b := newTestIdentity(1)
	require.NoError(t, w.Spawn(identity))
	assert.Equal(t, []bool{false}, b[0].visibility)

	w.SetConnectionReady(local)
	assert.True(t, identity.IsObservedBy(local))
	assert.Equal(t, []bool{false, true}, b[0].visibility)

	w.RemoveObserver(identity, local)
	assert.Equal(t, []bool{false, true, false}, b[0].visibility)
	requireObserverConsistency(t, w)
}

func TestRemoveConnection(t *testing.T) {
	w := newTestWorld()
	c1, _ := addConn(t, w, 1)
	c2, _ := addConn(t, w, 2)
	w.SetConnectionReady(c1)
	w.SetConnectionReady(c2)

	var revoked []*NetworkIdentity
	w.OnClientAuthority = func(conn *Connection, identity *NetworkIdentity, granted bool) {
		if !granted {
			revoked = append(revoked, identity)
		}
	}

	observed, _ := newTestIdentity(1)
	require.NoError(t, w.Spawn(observed))
	owned, ob := newTestIdentity(1)
	owned.LocalPlayerAuthority = true
	require.NoError(t, w.SpawnWithClientAuthority(owned, c1))
	player, _ := newTestIdentity(1)
	player.LocalPlayerAuthority = true
	require.NoError(t, w.AddPlayerForConnection(c1, player))
	requireObserverConsistency(t, w)

	w.RemoveConnection(c1)
	assert.Nil(t, w.Connection(1))
	assert.Equal(t, []*Connection{c2}, w.Connections())
	assert.Equal(t, []*Connection{c2}, observed.Observers())

	assert.Nil(t, owned.ClientAuthorityOwner())
	assert.True(t, owned.HasAuthority())
	assert.Equal(t, 2, ob[0].hookCount("OnStartAuthority"))
	assert.Equal(t, []*NetworkIdentity{owned}, revoked)

	assert.False(t, player.IsServer())
	assert.True(t, player.IsResetPending())
	assert.Nil(t, w.Identity(player.NetID()))
	requireObserverConsistency(t, w)

	// removing twice is a no-op
	w.RemoveConnection(c1)
	assert.Equal(t, []*Connection{c2}, w.Connections())
}

func TestAddConnectionRejectsDuplicates(t *testing.T) {
	w := newTestWorld()
	addConn(t, w, 1)
	_, err := w.AddConnection(1, &fakeTransport{})
	assert.Error(t, err)
	_, err = w.AddConnection(LOCAL_CONNECTION_ID, &fakeTransport{})
	assert.Error(t, err)
}

// destroyingBehavior destroys its identity while observers are rebuilt
type destroyingBehavior struct {
	NetworkBehavior
	world   *World
	destroy bool
	keep    *Connection
}

func (b *destroyingBehavior) OnRebuildObservers(observers ConnectionSet, initialize bool) bool {
	observers.Add(b.keep)
	if b.destroy {
		b.world.Destroy(b.Identity())
	}
	return true
}

func TestRebuildObserversToleratesDestroy(t *testing.T) {
	w := newTestWorld()
	c1, t1 := addConn(t, w, 1)
	w.SetConnectionReady(c1)

	d := &destroyingBehavior{world: w, keep: c1}
	counter := newTestBehavior()
	identity := NewNetworkIdentity("Doomed", d, counter)
	require.NoError(t, w.Spawn(identity))
	require.True(t, c1.IsObserving(identity))

	d.destroy = true
	w.RebuildObservers(identity, false)
	assert.False(t, identity.IsServer())
	assert.False(t, c1.IsObserving(identity))
	assert.Equal(t, 1, t1.count(proto.MT_OBJECT_DESTROY))
	assert.Equal(t, 0, t1.count(proto.MT_OBJECT_HIDE))
	assert.Equal(t, 1, counter.hookCount("OnNetworkDestroy"))
	requireObserverConsistency(t, w)
}

func TestLocalVisibilityOffFiresOnce(t *testing.T) {
	w := NewWorld(WorldOptions{LocalPlayerAuthority: true, HostClient: true})
	local := w.LocalConnection()
	w.SetConnectionReady(local)

	filter := &filterBehavior{participate: true, candidates: []*Connection{local}}
	counter := newTestBehavior()
	identity := NewNetworkIdentity("Filtered", filter, counter)
	require.NoError(t, w.Spawn(identity))
	assert.Equal(t, []bool{true}, counter.visibility)

	filter.candidates = nil
	w.RebuildObservers(identity, true)
	assert.False(t, identity.IsObservedBy(local))
	assert.Equal(t, []bool{true, false}, counter.visibility)
	requireObserverConsistency(t, w)
}

func TestDedicatedServerHidesLocally(t *testing.T) {
	w := newTestWorld()
	c1, _ := addConn(t, w, 1)
	w.SetConnectionReady(c1)

	identity, b := newTestIdentity(1)
	require.NoError(t, w.Spawn(identity))
	assert.True(t, identity.IsObservedBy(c1))
	assert.Equal(t, []bool{false}, b[0].visibility)
}
