package netutil

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

// MessagePackMsgPacker packs and unpacks message in MessagePack format
type MessagePackMsgPacker struct{}

// PackMsg packs message to bytes in MessagePack format, appending to buf
func (mp MessagePackMsgPacker) PackMsg(msg interface{}, buf []byte) ([]byte, error) {
	buffer := bytes.NewBuffer(buf)

	encoder := msgpack.NewEncoder(buffer)
	if err := encoder.Encode(msg); err != nil {
		return buf, errors.Wrap(err, "msgpack encode")
	}
	return buffer.Bytes(), nil
}

// UnpackMsg unpacks bytes in MessagePack format to message
func (mp MessagePackMsgPacker) UnpackMsg(data []byte, msg interface{}) error {
	if err := msgpack.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "msgpack decode")
	}
	return nil
}
