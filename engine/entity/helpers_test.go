package entity

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/netutil"
	"github.com/xiaonanln/gwrepl/engine/proto"
)

type sentMessage struct {
	msgtype proto.MsgType
	payload []byte
}

// fakeTransport records sent messages
type fakeTransport struct {
	sent []sentMessage
}

func (t *fakeTransport) SendMessage(msgtype uint16, payload []byte) error {
	t.sent = append(t.sent, sentMessage{msgtype, append([]byte(nil), payload...)})
	return nil
}

func (t *fakeTransport) RecvMessage() (uint16, []byte, error) {
	return 0, nil, io.EOF
}

func (t *fakeTransport) Close() error {
	return nil
}

func (t *fakeTransport) RemoteAddr() net.Addr {
	return nil
}

func (t *fakeTransport) count(msgtype proto.MsgType) int {
	n := 0
	for _, m := range t.sent {
		if m.msgtype == msgtype {
			n++
		}
	}
	return n
}

func (t *fakeTransport) last(msgtype proto.MsgType) []byte {
	for i := len(t.sent) - 1; i >= 0; i-- {
		if t.sent[i].msgtype == msgtype {
			return t.sent[i].payload
		}
	}
	return nil
}

func (t *fakeTransport) take() []sentMessage {
	msgs := t.sent
	t.sent = nil
	return msgs
}

// pump delivers all messages sent on from to world w as received from conn
func pump(from *fakeTransport, w *World, conn *Connection) {
	for _, m := range from.take() {
		w.HandleMessage(conn, m.msgtype, m.payload)
	}
}

// testBehavior replicates one int32 and records hook calls
type testBehavior struct {
	NetworkBehavior
	Value int32

	hooks            []string
	visibility       []bool
	deserializeCount int
	panicOnSerialize bool
	errOnSerialize   bool
	onHook           func(hook string)
	order            *[]int
}

func newTestBehavior() *testBehavior {
	return &testBehavior{}
}

func (b *testBehavior) Set(v int32) {
	b.Value = v
	b.SetDirtyBit(1)
}

func (b *testBehavior) Serialize(w *netutil.NetWriter, initial bool) error {
	if b.panicOnSerialize {
		w.AppendByte(0xee)
		panic("serializer is broken")
	}
	if b.errOnSerialize {
		return netutil.ErrShortRead
	}
	w.AppendInt32(b.Value)
	return nil
}

func (b *testBehavior) Deserialize(r *netutil.NetReader, initial bool) error {
	b.Value = r.ReadInt32()
	b.deserializeCount++
	if b.order != nil {
		*b.order = append(*b.order, b.ComponentIndex())
	}
	return r.Err()
}

func (b *testBehavior) hook(name string) {
	b.hooks = append(b.hooks, name)
	if b.onHook != nil {
		b.onHook(name)
	}
}

func (b *testBehavior) OnStartServer()      { b.hook("OnStartServer") }
func (b *testBehavior) OnStartClient()      { b.hook("OnStartClient") }
func (b *testBehavior) OnStartAuthority()   { b.hook("OnStartAuthority") }
func (b *testBehavior) OnStopAuthority()    { b.hook("OnStopAuthority") }
func (b *testBehavior) OnStartLocalPlayer() { b.hook("OnStartLocalPlayer") }
func (b *testBehavior) OnNetworkDestroy()   { b.hook("OnNetworkDestroy") }

func (b *testBehavior) OnSetLocalVisibility(visible bool) {
	b.visibility = append(b.visibility, visible)
}

func (b *testBehavior) hookCount(name string) int {
	n := 0
	for _, h := range b.hooks {
		if h == name {
			n++
		}
	}
	return n
}

func newTestIdentity(n int) (*NetworkIdentity, []*testBehavior) {
	behaviors := make([]*testBehavior, n)
	components := make([]Behavior, n)
	for i := range behaviors {
		behaviors[i] = newTestBehavior()
		components[i] = behaviors[i]
	}
	return NewNetworkIdentity("Test", components...), behaviors
}

func newTestWorld() *World {
	return NewWorld(WorldOptions{LocalPlayerAuthority: true})
}

func addConn(t *testing.T, w *World, id common.ConnectionID) (*Connection, *fakeTransport) {
	transport := &fakeTransport{}
	conn, err := w.AddConnection(id, transport)
	require.NoError(t, err)
	return conn, transport
}

func requireObserverConsistency(t *testing.T, w *World) {
	for _, identity := range w.Identities() {
		for _, conn := range identity.Observers() {
			require.True(t, conn.IsObserving(identity), "%s observes %s only in one direction", conn, identity)
		}
	}
	conns := w.Connections()
	if w.LocalConnection() != nil {
		conns = append(conns, w.LocalConnection())
	}
	for _, conn := range conns {
		for _, identity := range conn.VisibleObjects() {
			require.True(t, identity.IsObservedBy(conn), "%s observes %s only in one direction", conn, identity)
		}
	}
}
