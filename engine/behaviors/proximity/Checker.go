package proximity

import (
	"sort"

	"github.com/xiaonanln/go-aoi"
	"github.com/xiaonanln/gwrepl/engine/entity"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"github.com/xiaonanln/gwrepl/engine/netutil"
)

const positionDirtyBit = 1

type checkerSet map[*Checker]struct{}

func (cs checkerSet) toList() []*Checker {
	list := make([]*Checker, 0, len(cs))
	for c := range cs {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].NetID() < list[j].NetID()
	})
	return list
}

// Checker makes an object observed only by connections whose player objects are nearby
//
// On the server the Checker keeps its object in a Grid and contributes the owners of neighboring
// player objects to the observers. On clients it only receives the replicated position.
type Checker struct {
	entity.NetworkBehavior

	grid      *Grid
	aoi       aoi.AOI
	x, z      float32
	inGrid    bool
	neighbors checkerSet
}

// NewChecker creates a Checker in grid, grid may be nil on clients
func NewChecker(grid *Grid) *Checker {
	c := &Checker{
		grid:      grid,
		neighbors: checkerSet{},
	}
	if grid != nil {
		aoi.InitAOI(&c.aoi, grid.dist, c, c)
	}
	return c
}

// FindChecker returns the Checker component of identity, or nil
func FindChecker(identity *entity.NetworkIdentity) *Checker {
	if identity == nil {
		return nil
	}
	for _, b := range identity.Components() {
		if c, ok := b.(*Checker); ok {
			return c
		}
	}
	return nil
}

// Position returns the position on the XZ plane
func (c *Checker) Position() (x, z float32) {
	return c.x, c.z
}

// Neighbors returns the Checkers within distance, ordered by network ID
func (c *Checker) Neighbors() []*Checker {
	return c.neighbors.toList()
}

// IsNeighbor returns if other is within distance
func (c *Checker) IsNeighbor(other *Checker) bool {
	_, ok := c.neighbors[other]
	return ok
}

// SetPosition moves the object and rebuilds observers of every object whose neighbors changed
func (c *Checker) SetPosition(x, z float32) {
	c.x, c.z = x, z
	c.SetDirtyBit(positionDirtyBit)
	if !c.inGrid {
		return
	}

	affected := checkerSet{}
	for n := range c.neighbors {
		affected[n] = struct{}{}
	}
	c.grid.mgr.Moved(&c.aoi, aoi.Coord(x), aoi.Coord(z))
	for n := range c.neighbors {
		affected[n] = struct{}{}
	}

	c.rebuild(c)
	for _, n := range affected.toList() {
		c.rebuild(n)
	}
}

func (c *Checker) rebuild(target *Checker) {
	identity := target.Identity()
	if identity == nil || !identity.IsServer() {
		return
	}
	identity.World().RebuildObservers(identity, false)
}

// OnEnterAOI is called by the Grid when other comes within distance
func (c *Checker) OnEnterAOI(other *aoi.AOI) {
	c.neighbors[other.Data.(*Checker)] = struct{}{}
}

// OnLeaveAOI is called by the Grid when other goes out of distance
func (c *Checker) OnLeaveAOI(other *aoi.AOI) {
	delete(c.neighbors, other.Data.(*Checker))
}

// OnStartServer enters the Grid
func (c *Checker) OnStartServer() {
	if c.grid == nil {
		gwlog.Warnf("%s: proximity checker without grid, observers are not filtered", c.Identity())
		return
	}
	c.grid.mgr.Enter(&c.aoi, aoi.Coord(c.x), aoi.Coord(c.z))
	c.inGrid = true
	for _, n := range c.Neighbors() {
		c.rebuild(n)
	}
}

// OnNetworkDestroy leaves the Grid
func (c *Checker) OnNetworkDestroy() {
	if !c.inGrid {
		return
	}
	neighbors := c.Neighbors()
	c.grid.mgr.Leave(&c.aoi)
	c.inGrid = false
	for _, n := range neighbors {
		delete(n.neighbors, c)
	}
	c.neighbors = checkerSet{}
	for _, n := range neighbors {
		c.rebuild(n)
	}
}

// OnRebuildObservers adds the owners of this object and of neighboring player objects
func (c *Checker) OnRebuildObservers(observers entity.ConnectionSet, initialize bool) bool {
	if !c.inGrid {
		return false
	}
	if owner := c.Identity().ConnectionOwner(); owner != nil {
		observers.Add(owner)
	}
	for n := range c.neighbors {
		if owner := n.Identity().ConnectionOwner(); owner != nil {
			observers.Add(owner)
		}
	}
	return true
}

// OnCheckObserver accepts conn if its player object is this object or a neighbor
func (c *Checker) OnCheckObserver(conn *entity.Connection) bool {
	if !c.inGrid {
		return true
	}
	player := conn.PlayerObject()
	if player == nil {
		return false
	}
	if player == c.Identity() {
		return true
	}
	return c.IsNeighbor(FindChecker(player))
}

// Serialize writes the position
func (c *Checker) Serialize(w *netutil.NetWriter, initial bool) error {
	w.AppendFloat32(c.x)
	w.AppendFloat32(c.z)
	return nil
}

// Deserialize reads the position
func (c *Checker) Deserialize(r *netutil.NetReader, initial bool) error {
	x := r.ReadFloat32()
	z := r.ReadFloat32()
	if r.Err() != nil {
		return r.Err()
	}
	c.x, c.z = x, z
	return nil
}
