package entity

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwvar"
	"github.com/xiaonanln/gwrepl/engine/netutil"
)

// asymBehavior writes 8 bytes and reads back only 4
type asymBehavior struct {
	NetworkBehavior
	Value uint32
}

func (b *asymBehavior) Serialize(w *netutil.NetWriter, initial bool) error {
	w.AppendUint64(uint64(b.Value))
	return nil
}

func (b *asymBehavior) Deserialize(r *netutil.NetReader, initial bool) error {
	b.Value = r.ReadUint32()
	return r.Err()
}

func TestSerializeDeltaOnlyDirtyComponent(t *testing.T) {
	w := newTestWorld()
	server, sb := newTestIdentity(3)
	sb[0].Value = 10
	sb[2].Value = 30
	sb[1].Set(20)

	payload, ok := w.SerializeDelta(server, false)
	require.True(t, ok)
	payload = append([]byte(nil), payload...)

	r := netutil.NewNetReader(payload)
	assert.Equal(t, uint64(0x2), r.ReadUvarint())
	assert.False(t, sb[1].IsDirty())

	client, cb := newTestIdentity(3)
	require.NoError(t, newTestWorld().DeserializeDelta(client, netutil.NewNetReader(payload), false))
	assert.Equal(t, 0, cb[0].deserializeCount)
	assert.Equal(t, 1, cb[1].deserializeCount)
	assert.Equal(t, 0, cb[2].deserializeCount)
	assert.Equal(t, int32(20), cb[1].Value)
	assert.Equal(t, int32(0), cb[0].Value)
}

func TestSerializeDeltaNothingDirty(t *testing.T) {
	w := newTestWorld()
	server, _ := newTestIdentity(2)
	_, ok := w.SerializeDelta(server, false)
	assert.False(t, ok)
}

func TestSerializeDeltaInitialKeepsDirtyBits(t *testing.T) {
	w := newTestWorld()
	server, sb := newTestIdentity(3)
	sb[0].Set(1)

	payload, ok := w.SerializeDelta(server, true)
	require.True(t, ok)
	assert.Equal(t, uint64(0x7), netutil.NewNetReader(payload).ReadUvarint())
	assert.True(t, sb[0].IsDirty())

	_, ok = w.SerializeDelta(server, false)
	require.True(t, ok)
	assert.False(t, sb[0].IsDirty())
}

func TestSerializeDeltaSubsetsInAscendingOrder(t *testing.T) {
	w := newTestWorld()
	server, sb := newTestIdentity(consts.MAX_COMPONENTS)
	included := []int{0, 5, 31, 32, 63}
	for _, i := range included {
		sb[i].Set(int32(i * 100))
	}

	payload, ok := w.SerializeDelta(server, false)
	require.True(t, ok)
	payload = append([]byte(nil), payload...)

	var order []int
	client, cb := newTestIdentity(consts.MAX_COMPONENTS)
	for _, b := range cb {
		b.order = &order
	}
	require.NoError(t, w.DeserializeDelta(client, netutil.NewNetReader(payload), false))
	assert.Equal(t, included, order)
	for _, i := range included {
		assert.Equal(t, int32(i*100), cb[i].Value)
	}
}

func TestSerializeDeltaRoundTripIsIdempotent(t *testing.T) {
	w := newTestWorld()
	server, sb := newTestIdentity(2)
	sb[0].Value = 7
	sb[1].Value = -7

	payload, ok := w.SerializeDelta(server, true)
	require.True(t, ok)
	payload = append([]byte(nil), payload...)

	client, cb := newTestIdentity(2)
	require.NoError(t, w.DeserializeDelta(client, netutil.NewNetReader(payload), true))
	require.NoError(t, w.DeserializeDelta(client, netutil.NewNetReader(payload), true))
	assert.Equal(t, int32(7), cb[0].Value)
	assert.Equal(t, int32(-7), cb[1].Value)
}

func TestSerializerPanicKeepsFraming(t *testing.T) {
	w := newTestWorld()
	server, sb := newTestIdentity(3)
	sb[0].Set(1)
	sb[1].Set(2)
	sb[2].Set(3)
	sb[1].panicOnSerialize = true

	faults := gwvar.ComponentFaults.Value()
	payload, ok := w.SerializeDelta(server, false)
	require.True(t, ok)
	payload = append([]byte(nil), payload...)
	assert.True(t, gwvar.ComponentFaults.Value() > faults)

	r := netutil.NewNetReader(payload)
	assert.Equal(t, uint64(0x7), r.ReadUvarint())
	assert.Equal(t, uint32(4), r.ReadUint32())
	assert.Equal(t, int32(1), r.ReadInt32())
	assert.Equal(t, uint32(1), r.ReadUint32())
	assert.Equal(t, byte(0xee), r.ReadOneByte())
	assert.Equal(t, uint32(4), r.ReadUint32())
	assert.Equal(t, int32(3), r.ReadInt32())
	assert.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())

	assert.False(t, sb[0].IsDirty())
	assert.True(t, sb[1].IsDirty())
	assert.False(t, sb[2].IsDirty())

	client, cb := newTestIdentity(3)
	require.NoError(t, w.DeserializeDelta(client, netutil.NewNetReader(payload), false))
	assert.Equal(t, int32(1), cb[0].Value)
	assert.Equal(t, int32(3), cb[2].Value)
}

func TestSerializerErrorKeepsFraming(t *testing.T) {
	w := newTestWorld()
	server, sb := newTestIdentity(2)
	sb[0].Set(1)
	sb[1].Set(2)
	sb[0].errOnSerialize = true

	payload, ok := w.SerializeDelta(server, false)
	require.True(t, ok)

	r := netutil.NewNetReader(payload)
	assert.Equal(t, uint64(0x3), r.ReadUvarint())
	assert.Equal(t, uint32(0), r.ReadUint32())
	assert.Equal(t, uint32(4), r.ReadUint32())
	assert.Equal(t, int32(2), r.ReadInt32())
	assert.True(t, sb[0].IsDirty())
}

func TestDeserializerAsymmetryIsContained(t *testing.T) {
	w := newTestWorld()
	asym := &asymBehavior{Value: 99}
	counter := newTestBehavior()
	counter.Value = 42
	server := NewNetworkIdentity("Asym", asym, counter)

	payload, ok := w.SerializeDelta(server, true)
	require.True(t, ok)
	payload = append([]byte(nil), payload...)

	clientAsym := &asymBehavior{}
	clientCounter := newTestBehavior()
	client := NewNetworkIdentity("Asym", clientAsym, clientCounter)

	inconsistencies := gwvar.ProtocolInconsistencies.Value()
	require.NoError(t, w.DeserializeDelta(client, netutil.NewNetReader(payload), true))
	assert.Equal(t, uint32(99), clientAsym.Value)
	assert.Equal(t, int32(42), clientCounter.Value)
	assert.True(t, gwvar.ProtocolInconsistencies.Value() > inconsistencies)
}

func TestDeserializeMalformedFraming(t *testing.T) {
	w := newTestWorld()
	client, cb := newTestIdentity(2)

	err := w.DeserializeDelta(client, netutil.NewNetReader(nil), false)
	assert.Equal(t, ErrProtocolInconsistency, errors.Cause(err))

	// length truncated
	pw := netutil.NewNetWriter(0)
	pw.AppendUvarint(1)
	pw.AppendUint16(4)
	err = w.DeserializeDelta(client, netutil.NewNetReader(pw.Bytes()), false)
	assert.Equal(t, ErrProtocolInconsistency, errors.Cause(err))

	// length exceeds the payload
	pw = netutil.NewNetWriter(0)
	pw.AppendUvarint(1)
	pw.AppendUint32(100)
	pw.AppendInt32(5)
	err = w.DeserializeDelta(client, netutil.NewNetReader(pw.Bytes()), false)
	assert.Equal(t, ErrProtocolInconsistency, errors.Cause(err))
	assert.Equal(t, int32(5), cb[0].Value)

	// component beyond the identity is skipped
	pw = netutil.NewNetWriter(0)
	pw.AppendUvarint(1<<5 | 1<<1)
	pw.AppendUint32(4)
	pw.AppendInt32(6)
	pw.AppendUint32(4)
	pw.AppendInt32(7)
	err = w.DeserializeDelta(client, netutil.NewNetReader(pw.Bytes()), false)
	assert.NoError(t, err)
	assert.Equal(t, int32(6), cb[1].Value)
}

func TestSerializeDeltaRejectsReentrance(t *testing.T) {
	w := newTestWorld()
	inner, ib := newTestIdentity(1)
	ib[0].Set(1)

	var reentered bool
	outer := NewNetworkIdentity("Outer", &reentrantBehavior{world: w, inner: inner, reentered: &reentered})
	payload, ok := w.SerializeDelta(outer, true)
	require.True(t, ok)
	assert.False(t, reentered)

	r := netutil.NewNetReader(payload)
	assert.Equal(t, uint64(1), r.ReadUvarint())
	assert.Equal(t, uint32(0), r.ReadUint32())
}

type reentrantBehavior struct {
	NetworkBehavior
	world     *World
	inner     *NetworkIdentity
	reentered *bool
}

func (b *reentrantBehavior) Serialize(w *netutil.NetWriter, initial bool) error {
	_, *b.reentered = b.world.SerializeDelta(b.inner, false)
	return nil
}

// resetBehavior discards everything written before it
type resetBehavior struct {
	testBehavior
}

func (b *resetBehavior) Serialize(w *netutil.NetWriter, initial bool) error {
	w.Reset()
	w.AppendInt32(b.Value)
	return nil
}

func TestSerializerResettingWriterKeepsOthers(t *testing.T) {
	w := newTestWorld()
	good := newTestBehavior()
	bad := &resetBehavior{}
	server := NewNetworkIdentity("Reset", good, bad)
	good.Set(7)
	bad.Set(8)

	payload, ok := w.SerializeDelta(server, false)
	require.True(t, ok)
	payload = append([]byte(nil), payload...)
	assert.False(t, good.IsDirty())
	assert.False(t, bad.IsDirty())

	clientGood := newTestBehavior()
	clientBad := newTestBehavior()
	client := NewNetworkIdentity("Reset", clientGood, clientBad)
	require.NoError(t, w.DeserializeDelta(client, netutil.NewNetReader(payload), false))
	assert.Equal(t, int32(7), clientGood.Value)
	assert.Equal(t, int32(8), clientBad.Value)

	// later deltas are not wedged
	_, ok = w.SerializeDelta(server, false)
	assert.False(t, ok)
	good.Set(9)
	payload, ok = w.SerializeDelta(server, false)
	require.True(t, ok)
	r := netutil.NewNetReader(payload)
	assert.Equal(t, uint64(1), r.ReadUvarint())
	assert.Equal(t, uint32(4), r.ReadUint32())
	assert.Equal(t, int32(9), r.ReadInt32())
}
