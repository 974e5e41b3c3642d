package common

import (
	"strconv"

	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/uuid"
)

// NetID is the network id of a spawned object, 0 means not assigned yet
type NetID uint32

// IsNil returns if NetID is not assigned
func (id NetID) IsNil() bool {
	return id == 0
}

func (id NetID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ConnectionID is the id of a remote connection
type ConnectionID int32

// SceneID is the persistent key of an object placed in a static world
type SceneID uint64

// IsNil returns if SceneID is not set
func (id SceneID) IsNil() bool {
	return id == 0
}

// ASSETID_LENGTH is the length of asset IDs
const ASSETID_LENGTH = uuid.UUID_LENGTH

// AssetID is the template key of a dynamically spawned object
type AssetID string

// IsNil returns if AssetID is not set
func (id AssetID) IsNil() bool {
	return id == ""
}

// GenAssetID generates a new AssetID
func GenAssetID() AssetID {
	return AssetID(uuid.GenUUID())
}

// MustAssetID assures a string to be AssetID
func MustAssetID(id string) AssetID {
	if len(id) != ASSETID_LENGTH {
		gwlog.Panicf("%s of len %d is not a valid asset ID (len=%d)", id, len(id), ASSETID_LENGTH)
	}
	return AssetID(id)
}
