package proto

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/netutil"
)

const (
	originScene = 1
	originAsset = 2
)

// AuthorityMessage notifies a connection about authority over an object
type AuthorityMessage struct {
	NetID   common.NetID
	Granted bool
}

// Encode writes the message to w
func (m *AuthorityMessage) Encode(w *netutil.NetWriter) {
	w.AppendUint32(uint32(m.NetID))
	w.AppendBool(m.Granted)
}

// Decode reads the message from r
func (m *AuthorityMessage) Decode(r *netutil.NetReader) error {
	m.NetID = common.NetID(r.ReadUint32())
	m.Granted = r.ReadBool()
	if r.Err() != nil {
		return malformed(r, "AuthorityMessage")
	}
	return nil
}

// SpawnMessage makes an object visible to a connection
//
// Exactly one of SceneID and AssetID is set. Payload is the initial delta payload.
type SpawnMessage struct {
	NetID   common.NetID
	IsOwner bool
	SceneID common.SceneID
	AssetID common.AssetID
	Payload []byte
}

// Encode writes the message to w
func (m *SpawnMessage) Encode(w *netutil.NetWriter) {
	w.AppendUint32(uint32(m.NetID))
	w.AppendBool(m.IsOwner)
	if !m.SceneID.IsNil() {
		w.AppendByte(originScene)
		w.AppendUint64(uint64(m.SceneID))
	} else {
		w.AppendByte(originAsset)
		w.AppendVarStr(string(m.AssetID))
	}
	w.AppendVarBytes(m.Payload)
}

// Decode reads the message from r, Payload aliases the data of r
func (m *SpawnMessage) Decode(r *netutil.NetReader) error {
	m.NetID = common.NetID(r.ReadUint32())
	m.IsOwner = r.ReadBool()
	switch origin := r.ReadOneByte(); origin {
	case originScene:
		m.SceneID = common.SceneID(r.ReadUint64())
		m.AssetID = ""
	case originAsset:
		m.SceneID = 0
		m.AssetID = common.AssetID(r.ReadVarStr())
	default:
		if r.Err() == nil {
			return errors.Wrapf(ErrMalformedMessage, "SpawnMessage: unknown origin %d", origin)
		}
	}
	m.Payload = r.ReadVarBytes()
	if r.Err() != nil {
		return malformed(r, "SpawnMessage")
	}
	return nil
}

// UpdateVarsMessage carries a delta payload of an object
type UpdateVarsMessage struct {
	NetID   common.NetID
	Payload []byte
}

// Encode writes the message to w
func (m *UpdateVarsMessage) Encode(w *netutil.NetWriter) {
	w.AppendUint32(uint32(m.NetID))
	w.AppendBytes(m.Payload)
}

// Decode reads the message from r, the payload is the rest of r
func (m *UpdateVarsMessage) Decode(r *netutil.NetReader) error {
	m.NetID = common.NetID(r.ReadUint32())
	if r.Err() != nil {
		return malformed(r, "UpdateVarsMessage")
	}
	m.Payload = r.ReadBytes(r.Remaining())
	return nil
}

// DestroyMessage destroys or hides an object on a connection
type DestroyMessage struct {
	NetID common.NetID
}

// Encode writes the message to w
func (m *DestroyMessage) Encode(w *netutil.NetWriter) {
	w.AppendUint32(uint32(m.NetID))
}

// Decode reads the message from r
func (m *DestroyMessage) Decode(r *netutil.NetReader) error {
	m.NetID = common.NetID(r.ReadUint32())
	if r.Err() != nil {
		return malformed(r, "DestroyMessage")
	}
	return nil
}

// CallMessage is a remote call to a component of an object
type CallMessage struct {
	NetID          common.NetID
	ComponentIndex int32
	FunctionKey    uint32
	Args           []byte
}

// Encode writes the message to w
func (m *CallMessage) Encode(w *netutil.NetWriter) {
	w.AppendUint32(uint32(m.NetID))
	w.AppendInt32(m.ComponentIndex)
	w.AppendUint32(m.FunctionKey)
	w.AppendBytes(m.Args)
}

// Decode reads the message from r, Args is the rest of r
func (m *CallMessage) Decode(r *netutil.NetReader) error {
	m.NetID = common.NetID(r.ReadUint32())
	m.ComponentIndex = r.ReadInt32()
	m.FunctionKey = r.ReadUint32()
	if r.Err() != nil {
		return malformed(r, "CallMessage")
	}
	m.Args = r.ReadBytes(r.Remaining())
	return nil
}

// Message is implemented by all message codecs of this package
type Message interface {
	Encode(w *netutil.NetWriter)
	Decode(r *netutil.NetReader) error
}

// Marshal encodes m into a new payload
func Marshal(m Message) []byte {
	w := netutil.NewNetWriter(0)
	m.Encode(w)
	return w.Bytes()
}

// Unmarshal decodes payload into m
func Unmarshal(payload []byte, m Message) error {
	return m.Decode(netutil.NewNetReader(payload))
}

// LocalPlayerMessage tells a connection which object is its local player
type LocalPlayerMessage struct {
	NetID common.NetID
}

// Encode writes the message to w
func (m *LocalPlayerMessage) Encode(w *netutil.NetWriter) {
	w.AppendUint32(uint32(m.NetID))
}

// Decode reads the message from r
func (m *LocalPlayerMessage) Decode(r *netutil.NetReader) error {
	m.NetID = common.NetID(r.ReadUint32())
	if r.Err() != nil {
		return malformed(r, "LocalPlayerMessage")
	}
	return nil
}
