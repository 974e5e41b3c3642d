package proximity

import (
	"github.com/xiaonanln/go-aoi"
)

// Grid is the interest area shared by the Checkers of one World
type Grid struct {
	mgr  aoi.AOIManager
	dist aoi.Coord
}

// NewGrid creates a Grid in which objects within dist on both X and Z axes are neighbors
func NewGrid(dist float32) *Grid {
	return &Grid{
		mgr:  aoi.NewXZListAOIManager(aoi.Coord(dist)),
		dist: aoi.Coord(dist),
	}
}

// Distance returns the interest distance of the Grid
func (g *Grid) Distance() float32 {
	return float32(g.dist)
}
