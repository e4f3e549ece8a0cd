// Package geometry holds the axis-aligned volumes imported models are placed into.
package geometry

import "fmt"

// Wire names of the six bounds fields, shared by the MCP params and the Unity command payload.
const (
	FieldCenterX = "centerX"
	FieldCenterY = "centerY"
	FieldCenterZ = "centerZ"
	FieldSizeX   = "sizeX"
	FieldSizeY   = "sizeY"
	FieldSizeZ   = "sizeZ"
)

// FieldNames lists the bounds fields in wire order.
var FieldNames = []string{FieldCenterX, FieldCenterY, FieldCenterZ, FieldSizeX, FieldSizeY, FieldSizeZ}

type Vector3 struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	Z float64 `json:"z" toml:"z"`
}

func Vec3(x, y, z float64) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector3) Scale(f float64) Vector3 {
	return Vector3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Bounds is an axis-aligned box described by its center and full size per axis.
type Bounds struct {
	Center Vector3 `json:"center" toml:"center"`
	Size   Vector3 `json:"size" toml:"size"`
}

func NewBounds(center, size Vector3) Bounds {
	return Bounds{Center: center, Size: size}
}

// DefaultBounds is the 2x2x2 cube at the origin used when a request carries no bounds.
func DefaultBounds() Bounds {
	return Bounds{Center: Vector3{}, Size: Vec3(2, 2, 2)}
}

// Extents is half the size.
func (b Bounds) Extents() Vector3 {
	return b.Size.Scale(0.5)
}

func (b Bounds) Min() Vector3 {
	return b.Center.Sub(b.Extents())
}

func (b Bounds) Max() Vector3 {
	return b.Center.Add(b.Extents())
}

// Contains reports whether p lies inside the box, faces included.
func (b Bounds) Contains(p Vector3) bool {
	lo, hi := b.Min(), b.Max()
	return p.X >= lo.X && p.X <= hi.X &&
		p.Y >= lo.Y && p.Y <= hi.Y &&
		p.Z >= lo.Z && p.Z <= hi.Z
}

// Fields flattens the box into the six-field wire object.
func (b Bounds) Fields() map[string]float64 {
	return map[string]float64{
		FieldCenterX: b.Center.X,
		FieldCenterY: b.Center.Y,
		FieldCenterZ: b.Center.Z,
		FieldSizeX:   b.Size.X,
		FieldSizeY:   b.Size.Y,
		FieldSizeZ:   b.Size.Z,
	}
}

// BoundsFromFields is the inverse of Fields. Every one of the six fields must be present.
func BoundsFromFields(fields map[string]float64) (Bounds, error) {
	vals := make([]float64, len(FieldNames))
	for i, name := range FieldNames {
		v, ok := fields[name]
		if !ok {
			return Bounds{}, fmt.Errorf("bounds field %q is missing", name)
		}
		vals[i] = v
	}
	return NewBounds(Vec3(vals[0], vals[1], vals[2]), Vec3(vals[3], vals[4], vals[5])), nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("center=%s size=%s", b.Center, b.Size)
}
