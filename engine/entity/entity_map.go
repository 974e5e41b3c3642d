package entity

import (
	"bytes"
	"sort"

	"github.com/xiaonanln/gwrepl/engine/common"
)

// IdentityMap is the data structure for maintaining network IDs to identities
type IdentityMap map[common.NetID]*NetworkIdentity

// Add adds a new identity to IdentityMap
func (im IdentityMap) Add(identity *NetworkIdentity) {
	im[identity.netID] = identity
}

// Del deletes an identity from IdentityMap
func (im IdentityMap) Del(id common.NetID) {
	delete(im, id)
}

// Get returns the identity of specified network ID in IdentityMap
func (im IdentityMap) Get(id common.NetID) *NetworkIdentity {
	return im[id]
}

// ToList returns all identities ordered by network ID
func (im IdentityMap) ToList() []*NetworkIdentity {
	list := make([]*NetworkIdentity, 0, len(im))
	for _, identity := range im {
		list = append(list, identity)
	}
	sortIdentities(list)
	return list
}

// IdentitySet is the data structure for a set of identities
type IdentitySet map[*NetworkIdentity]struct{}

// Add adds an identity to the IdentitySet
func (is IdentitySet) Add(identity *NetworkIdentity) {
	is[identity] = struct{}{}
}

// Del deletes an identity from the IdentitySet
func (is IdentitySet) Del(identity *NetworkIdentity) {
	delete(is, identity)
}

// Contains returns if the identity is in the IdentitySet
func (is IdentitySet) Contains(identity *NetworkIdentity) bool {
	_, ok := is[identity]
	return ok
}

// ToList returns identities in the set ordered by network ID
func (is IdentitySet) ToList() []*NetworkIdentity {
	list := make([]*NetworkIdentity, 0, len(is))
	for identity := range is {
		list = append(list, identity)
	}
	sortIdentities(list)
	return list
}

func (is IdentitySet) String() string {
	b := bytes.Buffer{}
	b.WriteString("{")
	for i, identity := range is.ToList() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(identity.String())
	}
	b.WriteString("}")
	return b.String()
}

func sortIdentities(list []*NetworkIdentity) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].netID < list[j].netID
	})
}

// ConnectionSet maps connection IDs to connections
type ConnectionSet map[common.ConnectionID]*Connection

// Add adds a connection to the ConnectionSet
func (cs ConnectionSet) Add(conn *Connection) {
	cs[conn.ID] = conn
}

// Del deletes a connection from the ConnectionSet
func (cs ConnectionSet) Del(conn *Connection) {
	if cs[conn.ID] == conn {
		delete(cs, conn.ID)
	}
}

// Contains returns if the connection is in the ConnectionSet
func (cs ConnectionSet) Contains(conn *Connection) bool {
	if conn == nil {
		return false
	}
	c, ok := cs[conn.ID]
	return ok && c == conn
}

// Get returns the connection of specified ID
func (cs ConnectionSet) Get(id common.ConnectionID) *Connection {
	return cs[id]
}

// ToList returns connections in the set ordered by connection ID
func (cs ConnectionSet) ToList() []*Connection {
	list := make([]*Connection, 0, len(cs))
	for _, conn := range cs {
		list = append(list, conn)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}
