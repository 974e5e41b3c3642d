package entity

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/gwutils"
	"github.com/xiaonanln/gwrepl/engine/gwvar"
	"github.com/xiaonanln/gwrepl/engine/netutil"
)

// SerializeDelta writes the framed payload of identity
//
// The payload is a varint mask of included components followed by a length prefixed segment
// for each of them. A component is included if initial or dirty. Dirty bits are cleared only
// after a successful non-initial serialization. A failing serializer keeps whatever it wrote
// into its own segment, and the segment length always matches the bytes in the segment.
//
// The returned slice is the scratch buffer of the world and is valid until the next
// serialization. Calling SerializeDelta from inside a serializer is illegal and rejected.
func (w *World) SerializeDelta(identity *NetworkIdentity, initial bool) ([]byte, bool) {
	if w.serializing {
		gwlog.Errorf("%s: reentrant serialization rejected", identity)
		return nil, false
	}
	w.serializing = true
	defer func() {
		w.serializing = false
	}()

	components := identity.components
	if len(components) > consts.MAX_COMPONENTS {
		gwlog.Errorf("%s: %d components can not be serialized", identity, len(components))
		return nil, false
	}

	var mask uint64
	for i, c := range components {
		if initial || w.isDirty(identity, i, c) {
			mask |= 1 << uint(i)
		}
	}
	if mask == 0 {
		return nil, false
	}

	writer := w.writer
	writer.Reset()
	writer.AppendUvarint(mask)
	segment := w.segmentWriter
	for i, c := range components {
		if mask&(1<<uint(i)) == 0 {
			continue
		}

		// each component writes into its own segment
		segment.Reset()
		err := gwutils.CatchPanicErr(func() error {
			return c.Serialize(segment, initial)
		})
		writer.AppendVarBytes(segment.Bytes())

		if err != nil {
			identity.componentFault(i, "Serialize", err)
		} else if !initial {
			c.ClearDirtyBits()
		}
	}

	if consts.DEBUG_SERIALIZE {
		gwlog.Debugf("%s: serialized mask=%b initial=%v len=%d", identity, mask, initial, writer.Len())
	}
	return writer.Bytes(), true
}

func (w *World) isDirty(identity *NetworkIdentity, index int, c Behavior) bool {
	var dirty bool
	if err := gwutils.CatchPanic(func() { dirty = c.IsDirty() }); err != nil {
		identity.componentFault(index, "IsDirty", err)
		return false
	}
	return dirty
}

// DeserializeDelta applies a framed payload to identity
//
// Each included component reads only from its own segment. A component consuming more or less
// than its segment is reported, and the next component still starts at its own segment.
// An error is returned when the framing itself is broken.
func (w *World) DeserializeDelta(identity *NetworkIdentity, r *netutil.NetReader, initial bool) error {
	mask := r.ReadUvarint()
	if r.Err() != nil {
		return w.protocolInconsistency(identity, "truncated component mask: %v", r.Err())
	}

	components := identity.components
	var framingErr error
	for i := 0; i < consts.MAX_COMPONENTS; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}

		length := r.ReadInt32()
		if r.Err() != nil {
			return w.protocolInconsistency(identity, "truncated length of component %d: %v", i, r.Err())
		}
		if length < 0 {
			return w.protocolInconsistency(identity, "negative length %d of component %d", length, i)
		}
		sub, ok := r.SubReader(int(length))
		if !ok && framingErr == nil {
			framingErr = w.protocolInconsistency(identity, "length %d of component %d exceeds the payload, clamped to %d", length, i, sub.Len())
		}

		if i >= len(components) {
			w.protocolInconsistency(identity, "component %d does not exist (%d components)", i, len(components))
			continue
		}

		c := components[i]
		err := gwutils.CatchPanicErr(func() error {
			return c.Deserialize(sub, initial)
		})
		if err != nil {
			identity.componentFault(i, "Deserialize", err)
			continue
		}
		if sub.Err() != nil || sub.Remaining() != 0 {
			w.protocolInconsistency(identity, "component %d consumed %d of %d bytes (err=%v)", i, sub.Position(), sub.Len(), sub.Err())
		}
	}
	return framingErr
}

func (w *World) protocolInconsistency(identity *NetworkIdentity, format string, args ...interface{}) error {
	gwvar.ProtocolInconsistencies.Add(1)
	err := errors.Wrapf(ErrProtocolInconsistency, "%s: "+format, append([]interface{}{identity}, args...)...)
	gwlog.Warnf("%v", err)
	return err
}
