package uuid

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"io"
	"os"
	"sync/atomic"
	"time"
)

const (
	// UUID_LENGTH is length of a UUID
	UUID_LENGTH = 16
	encodeUUID  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_."
	rawLength   = 12
)

var (
	uuidEncoding = base64.NewEncoding(encodeUUID).WithPadding(base64.NoPadding)
	counter      uint32
	machine      = machineBytes()
)

// GenUUID generates a new unique id of UUID_LENGTH printable characters
//
// Layout of the 12 raw bytes: 4 bytes unix time, 3 bytes machine, 2 bytes pid, 3 bytes counter
func GenUUID() string {
	var b [rawLength]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	copy(b[4:7], machine[:])
	pid := os.Getpid()
	b[7] = byte(pid >> 8)
	b[8] = byte(pid)
	i := atomic.AddUint32(&counter, 1)
	b[9] = byte(i >> 16)
	b[10] = byte(i >> 8)
	b[11] = byte(i)
	return uuidEncoding.EncodeToString(b[:])
}

func machineBytes() (id [3]byte) {
	hostname, err := os.Hostname()
	if err != nil {
		if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
			panic(err)
		}
		return
	}
	sum := md5.Sum([]byte(hostname))
	copy(id[:], sum[:3])
	return
}
