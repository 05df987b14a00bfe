package camera

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/model"
)

// ErrDegenerateGeometry is returned by FramingTarget when the node sits at
// the origin, where the direction from the origin through it is undefined.
var ErrDegenerateGeometry = errors.New("degenerate geometry: position has zero length")

// Centroid returns the mean position of nodes. ok is false when nodes is
// empty.
func Centroid(nodes []*model.Node) (c r3.Vec, ok bool) {
	n := 0
	for _, node := range nodes {
		if node == nil {
			continue
		}
		c = r3.Add(c, node.Position())
		n++
	}
	if n == 0 {
		return r3.Vec{}, false
	}
	return r3.Scale(1/float64(n), c), true
}

// FramingTarget returns the camera position for looking at pos from
// standoff units further out along the ray from the origin through pos.
//
// When pos has zero length (or is not finite) there is no such ray; the
// target falls back to minStandoff units along +Z from pos and
// ErrDegenerateGeometry is returned alongside it.
func FramingTarget(pos r3.Vec, standoff, minStandoff float64) (r3.Vec, error) {
	norm := r3.Norm(pos)
	if !finite(norm) {
		pos, norm = r3.Vec{}, 0
	}
	if norm == 0 {
		return r3.Add(pos, r3.Vec{Z: minStandoff}), ErrDegenerateGeometry
	}
	ratio := 1 + standoff/norm
	return r3.Scale(ratio, pos), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
