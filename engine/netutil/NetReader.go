package netutil

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrShortRead is recorded when reading past the end of a NetReader
	ErrShortRead = errors.New("short read")
	// ErrBadVarint is recorded when a varint is malformed
	ErrBadVarint = errors.New("malformed varint")
)

// NetReader reads network payloads from a bounded byte slice
//
// NetReader never panics on malformed data. The first failure is kept as a sticky
// error returned by Err, and every read after it returns zero values.
type NetReader struct {
	data []byte
	pos  int
	err  error
}

// NewNetReader creates a NetReader over data
func NewNetReader(data []byte) *NetReader {
	return &NetReader{data: data}
}

// Err returns the first error that occurred while reading
func (r *NetReader) Err() error {
	return r.err
}

// Position returns the number of consumed bytes
func (r *NetReader) Position() int {
	return r.pos
}

// Len returns the total size of the underlying data
func (r *NetReader) Len() int {
	return len(r.data)
}

// Remaining returns the number of unread bytes
func (r *NetReader) Remaining() int {
	return len(r.data) - r.pos
}

// UnreadBytes returns the unread bytes without consuming them
func (r *NetReader) UnreadBytes() []byte {
	return r.data[r.pos:]
}

func (r *NetReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *NetReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.fail(errors.Wrapf(ErrShortRead, "reading %d bytes at %d of %d", n, r.pos, len(r.data)))
		r.pos = len(r.data)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadOneByte reads one byte
func (r *NetReader) ReadOneByte() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadBool reads one byte 1/0
func (r *NetReader) ReadBool() bool {
	return r.ReadOneByte() != 0
}

// ReadUint16 reads one uint16
func (r *NetReader) ReadUint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return NETWORK_ENDIAN.Uint16(b)
}

// ReadUint32 reads one uint32
func (r *NetReader) ReadUint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return NETWORK_ENDIAN.Uint32(b)
}

// ReadInt32 reads one int32
func (r *NetReader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadUint64 reads one uint64
func (r *NetReader) ReadUint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return NETWORK_ENDIAN.Uint64(b)
}

// ReadFloat32 reads one float32
func (r *NetReader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

// ReadFloat64 reads one float64
func (r *NetReader) ReadFloat64() float64 {
	return math.Float64frombits(r.ReadUint64())
}

// ReadUvarint reads an unsigned varint
func (r *NetReader) ReadUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.pos:])
	if n == 0 {
		r.fail(errors.Wrapf(ErrShortRead, "reading varint at %d of %d", r.pos, len(r.data)))
		r.pos = len(r.data)
		return 0
	} else if n < 0 {
		r.fail(errors.Wrapf(ErrBadVarint, "varint overflows at %d", r.pos))
		r.pos = len(r.data)
		return 0
	}
	r.pos += n
	return v
}

// ReadBytes reads size bytes; the result is not copied
func (r *NetReader) ReadBytes(size int) []byte {
	return r.next(size)
}

// ReadVarBytes reads bytes prefixed by uint32 length
func (r *NetReader) ReadVarBytes() []byte {
	n := r.ReadUint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(r.Remaining()) {
		r.fail(errors.Wrapf(ErrShortRead, "var bytes of %d at %d of %d", n, r.pos, len(r.data)))
		r.pos = len(r.data)
		return nil
	}
	return r.next(int(n))
}

// ReadVarStr reads a string prefixed by uint32 length
func (r *NetReader) ReadVarStr() string {
	return string(r.ReadVarBytes())
}

// ReadStringList reads a list of strings
func (r *NetReader) ReadStringList() []string {
	n := int(r.ReadUint16())
	if r.err != nil {
		return nil
	}
	list := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		list = append(list, r.ReadVarStr())
	}
	return list
}

// ReadData reads one value packed by MSG_PACKER into msg
func (r *NetReader) ReadData(msg interface{}) error {
	b := r.ReadVarBytes()
	if r.err != nil {
		return r.err
	}
	return MSG_PACKER.UnpackMsg(b, msg)
}

// SubReader slices the next n bytes into an isolated NetReader
//
// The outer reader always advances past the slice. If fewer than n bytes remain,
// the slice is clamped to the remaining bytes and ok is false.
func (r *NetReader) SubReader(n int) (sub *NetReader, ok bool) {
	if r.err != nil {
		return NewNetReader(nil), false
	}
	ok = true
	if n < 0 || n > r.Remaining() {
		n = r.Remaining()
		ok = false
	}
	sub = NewNetReader(r.data[r.pos : r.pos+n])
	r.pos += n
	return
}
