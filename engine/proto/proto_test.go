package proto

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/gwrepl/engine/common"
)

func TestCallKind(t *testing.T) {
	for _, kind := range []CallKind{CallCommand, CallRPC, CallEvent} {
		got, ok := CallKindOf(kind.MsgType())
		require.True(t, ok)
		assert.Equal(t, kind, got)
	}
	_, ok := CallKindOf(MT_UPDATE_VARS)
	assert.False(t, ok)
	assert.Equal(t, MT_INVALID, CallKind(0).MsgType())
	assert.Equal(t, "MT_CALL_RPC", MsgTypeName(MT_CALL_RPC))
	assert.Equal(t, "MT_UNKNOWN", MsgTypeName(1000))
}

func TestSpawnMessage(t *testing.T) {
	scene := &SpawnMessage{NetID: 3, IsOwner: true, SceneID: 77, Payload: []byte{1, 2}}
	var got SpawnMessage
	require.NoError(t, Unmarshal(Marshal(scene), &got))
	assert.Equal(t, common.NetID(3), got.NetID)
	assert.True(t, got.IsOwner)
	assert.Equal(t, common.SceneID(77), got.SceneID)
	assert.True(t, got.AssetID.IsNil())
	assert.Equal(t, []byte{1, 2}, got.Payload)

	asset := &SpawnMessage{NetID: 4, AssetID: "tank"}
	require.NoError(t, Unmarshal(Marshal(asset), &got))
	assert.Equal(t, common.AssetID("tank"), got.AssetID)
	assert.True(t, got.SceneID.IsNil())
	assert.Empty(t, got.Payload)
}

func TestMalformedMessages(t *testing.T) {
	var spawn SpawnMessage
	err := Unmarshal([]byte{1, 0, 0, 0, 0, 9}, &spawn)
	assert.Equal(t, ErrMalformedMessage, errors.Cause(err))

	payload := Marshal(&SpawnMessage{NetID: 1, SceneID: 1, Payload: []byte{1, 2, 3}})
	err = Unmarshal(payload[:len(payload)-1], &spawn)
	assert.Equal(t, ErrMalformedMessage, errors.Cause(err))

	var call CallMessage
	err = Unmarshal([]byte{1, 0, 0}, &call)
	assert.Equal(t, ErrMalformedMessage, errors.Cause(err))

	var auth AuthorityMessage
	err = Unmarshal([]byte{1, 0, 0, 0}, &auth)
	assert.Equal(t, ErrMalformedMessage, errors.Cause(err))
}

func TestCallMessageArgsAreTail(t *testing.T) {
	payload := Marshal(&CallMessage{NetID: 9, ComponentIndex: 2, FunctionKey: 0xabcdef, Args: []byte("args")})
	var call CallMessage
	require.NoError(t, Unmarshal(payload, &call))
	assert.Equal(t, int32(2), call.ComponentIndex)
	assert.Equal(t, uint32(0xabcdef), call.FunctionKey)
	assert.Equal(t, []byte("args"), call.Args)
}

func TestUpdateVarsMessage(t *testing.T) {
	var msg UpdateVarsMessage
	require.NoError(t, Unmarshal(Marshal(&UpdateVarsMessage{NetID: 5, Payload: []byte{0x02}}), &msg))
	assert.Equal(t, common.NetID(5), msg.NetID)
	assert.Equal(t, []byte{0x02}, msg.Payload)
}
