package netutil

import (
	"encoding/binary"
	"math"

	"github.com/xiaonanln/gwrepl/engine/gwlog"
)

const (
	_MIN_WRITER_CAP = 128
)

var (
	// NETWORK_ENDIAN is the byte order of every fixed-size field on the wire
	NETWORK_ENDIAN = binary.LittleEndian
)

// NetWriter is a growable buffer for writing network payloads
//
// A NetWriter is not safe for concurrent use.
type NetWriter struct {
	buf []byte
}

// NewNetWriter creates a NetWriter with initial capacity
func NewNetWriter(capacity int) *NetWriter {
	if capacity < _MIN_WRITER_CAP {
		capacity = _MIN_WRITER_CAP
	}
	return &NetWriter{
		buf: make([]byte, 0, capacity),
	}
}

// Len returns the number of written bytes
func (w *NetWriter) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes, which are valid until the next write or Reset
func (w *NetWriter) Bytes() []byte {
	return w.buf
}

// Reset discards written bytes but keeps the capacity
func (w *NetWriter) Reset() {
	w.buf = w.buf[:0]
}

// Truncate discards bytes written after position n
func (w *NetWriter) Truncate(n int) {
	if n < 0 || n > len(w.buf) {
		gwlog.Panicf("NetWriter.Truncate: %d out of range [0, %d]", n, len(w.buf))
	}
	w.buf = w.buf[:n]
}

// AppendByte appends one byte
func (w *NetWriter) AppendByte(b byte) {
	w.buf = append(w.buf, b)
}

// AppendBool appends one byte 1/0
func (w *NetWriter) AppendBool(b bool) {
	if b {
		w.AppendByte(1)
	} else {
		w.AppendByte(0)
	}
}

// AppendUint16 appends one uint16
func (w *NetWriter) AppendUint16(v uint16) {
	var b [2]byte
	NETWORK_ENDIAN.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// AppendUint32 appends one uint32
func (w *NetWriter) AppendUint32(v uint32) {
	var b [4]byte
	NETWORK_ENDIAN.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// AppendInt32 appends one int32
func (w *NetWriter) AppendInt32(v int32) {
	w.AppendUint32(uint32(v))
}

// AppendUint64 appends one uint64
func (w *NetWriter) AppendUint64(v uint64) {
	var b [8]byte
	NETWORK_ENDIAN.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// AppendFloat32 appends one float32
func (w *NetWriter) AppendFloat32(f float32) {
	w.AppendUint32(math.Float32bits(f))
}

// AppendFloat64 appends one float64
func (w *NetWriter) AppendFloat64(f float64) {
	w.AppendUint64(math.Float64bits(f))
}

// AppendUvarint appends an unsigned varint
func (w *NetWriter) AppendUvarint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	w.buf = append(w.buf, b[:n]...)
}

// AppendBytes appends raw bytes
func (w *NetWriter) AppendBytes(v []byte) {
	w.buf = append(w.buf, v...)
}

// AppendVarBytes appends bytes prefixed by uint32 length
func (w *NetWriter) AppendVarBytes(v []byte) {
	w.AppendUint32(uint32(len(v)))
	w.AppendBytes(v)
}

// AppendVarStr appends a string prefixed by uint32 length
func (w *NetWriter) AppendVarStr(s string) {
	w.AppendUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// AppendStringList appends a list of strings
func (w *NetWriter) AppendStringList(list []string) {
	w.AppendUint16(uint16(len(list)))
	for _, s := range list {
		w.AppendVarStr(s)
	}
}

// AppendData appends one value of any type packed by MSG_PACKER
func (w *NetWriter) AppendData(msg interface{}) error {
	data, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		return err
	}
	w.AppendVarBytes(data)
	return nil
}

// ReserveUint32 appends a zero uint32 placeholder and returns its position for PatchUint32
func (w *NetWriter) ReserveUint32() int {
	pos := len(w.buf)
	w.AppendUint32(0)
	return pos
}

// PatchUint32 overwrites the uint32 at position pos
func (w *NetWriter) PatchUint32(pos int, v uint32) {
	if pos < 0 || pos+4 > len(w.buf) {
		gwlog.Panicf("NetWriter.PatchUint32: position %d out of range (len=%d)", pos, len(w.buf))
	}
	NETWORK_ENDIAN.PutUint32(w.buf[pos:pos+4], v)
}
