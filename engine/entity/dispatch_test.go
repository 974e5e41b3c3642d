package entity

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

func registerAdd(b *testBehavior) FunctionKey {
	return b.RegisterCommand("Add", func(r *netutil.NetReader) error {
		var n int32
		if err := r.ReadData(&n); err != nil {
			return err
		}
		b.Set(b.Value + n)
		return nil
	})
}

func TestGetFunctionKey(t *testing.T) {
	assert.Equal(t, FunctionKey(0x811c9dc5), GetFunctionKey(""))
	assert.Equal(t, FunctionKey(0xe40c292c), GetFunctionKey("a"))
	assert.NotEqual(t, GetFunctionKey("Fire"), GetFunctionKey("Move"))
}

func TestDispatch(t *testing.T) {
	w := newTestWorld()
	identity, b := newTestIdentity(2)
	key := registerAdd(b[0])
	args, err := PackArgs(int32(3))
	require.NoError(t, err)

	assert.True(t, w.Dispatch(identity, 0, key, proto.CallCommand, netutil.NewNetReader(args)))
	assert.Equal(t, int32(3), b[0].Value)

	// out of range, unknown key and wrong kind are dropped
	assert.False(t, w.Dispatch(identity, 2, key, proto.CallCommand, netutil.NewNetReader(args)))
	assert.False(t, w.Dispatch(identity, -1, key, proto.CallCommand, netutil.NewNetReader(args)))
	assert.False(t, w.Dispatch(identity, 1, key, proto.CallCommand, netutil.NewNetReader(args)))
	assert.False(t, w.Dispatch(identity, 0, GetFunctionKey("Missing"), proto.CallCommand, netutil.NewNetReader(args)))
	assert.False(t, w.Dispatch(identity, 0, key, proto.CallRPC, netutil.NewNetReader(args)))
	assert.Equal(t, int32(3), b[0].Value)

	// a handler failing on bad arguments is still handled
	assert.True(t, w.Dispatch(identity, 0, key, proto.CallCommand, netutil.NewNetReader(nil)))

	boom := b[1].RegisterEvent("Boom", func(r *netutil.NetReader) error {
		panic("boom")
	})
	assert.False(t, w.Dispatch(identity, 1, boom, proto.CallEvent, netutil.NewNetReader(nil)))
}

func TestHandleCommandRequiresOwner(t *testing.T) {
	w := newTestWorld()
	c1, _ := addConn(t, w, 1)
	c2, _ := addConn(t, w, 2)

	identity, b := newTestIdentity(1)
	identity.LocalPlayerAuthority = true
	key := registerAdd(b[0])
	require.NoError(t, w.SpawnWithClientAuthority(identity, c1))

	args, _ := PackArgs(int32(5))
	payload := proto.Marshal(&proto.CallMessage{NetID: identity.NetID(), ComponentIndex: 0, FunctionKey: uint32(key), Args: args})

	w.HandleMessage(c2, proto.MT_CALL_COMMAND, payload)
	assert.Equal(t, int32(0), b[0].Value)
	w.HandleMessage(c1, proto.MT_CALL_COMMAND, payload)
	assert.Equal(t, int32(5), b[0].Value)

	// clients can not call client-bound functions on the server
	w.HandleMessage(c1, proto.MT_CALL_RPC, payload)
	w.HandleMessage(c1, proto.MT_CALL_EVENT, payload)
	assert.Equal(t, int32(5), b[0].Value)

	// malformed and unknown targets are dropped
	w.HandleMessage(c1, proto.MT_CALL_COMMAND, payload[:3])
	w.HandleMessage(c1, proto.MT_CALL_COMMAND, proto.Marshal(&proto.CallMessage{NetID: 999, FunctionKey: uint32(key), Args: args}))
	w.HandleMessage(c1, proto.MT_CALL_COMMAND, proto.Marshal(&proto.CallMessage{NetID: identity.NetID(), ComponentIndex: 7, FunctionKey: uint32(key), Args: args}))
	w.HandleMessage(c1, 0xffff, nil)
	assert.Equal(t, int32(5), b[0].Value)
}

func TestCallRPCSendsToObservers(t *testing.T) {
	w := newTestWorld()
	c1, t1 := addConn(t, w, 1)
	_, t2 := addConn(t, w, 2)
	w.SetConnectionReady(c1)

	identity, b := newTestIdentity(2)
	assert.Equal(t, ErrConfiguration, errors.Cause(b[1].CallRPC("Hit", 1)))

	require.NoError(t, w.Spawn(identity))
	require.NoError(t, b[1].CallRPC("Hit", int32(8)))
	require.NoError(t, b[1].CallEvent("Bang"))
	assert.Equal(t, 1, t1.count(proto.MT_CALL_RPC))
	assert.Equal(t, 1, t1.count(proto.MT_CALL_EVENT))
	assert.Equal(t, 0, t2.count(proto.MT_CALL_RPC))

	var msg proto.CallMessage
	require.NoError(t, proto.Unmarshal(t1.last(proto.MT_CALL_RPC), &msg))
	assert.Equal(t, identity.NetID(), msg.NetID)
	assert.Equal(t, int32(1), msg.ComponentIndex)
	assert.Equal(t, uint32(GetFunctionKey("Hit")), msg.FunctionKey)

	var n int32
	require.NoError(t, netutil.NewNetReader(msg.Args).ReadData(&n))
	assert.Equal(t, int32(8), n)

	// a command called on the server runs immediately
	registerAdd(b[0])
	require.NoError(t, b[0].CallCommand("Add", int32(2)))
	assert.Equal(t, int32(2), b[0].Value)
}

func TestSendCommandWithoutServerConnection(t *testing.T) {
	w := newTestWorld()
	identity, b := newTestIdentity(1)
	require.NoError(t, w.RegisterSceneObject(1, identity))
	assert.Equal(t, ErrConfiguration, errors.Cause(b[0].CallCommand("Add", 1)))
	assert.Equal(t, ErrNotServer, errors.Cause(b[0].CallRPC("Hit")))
}
