// Package model defines decoded model assets and the bookkeeping the render
// thread keeps for the entities instancing them.
package model

import (
	"cmp"
	"slices"

	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

type BoundingBox struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Extend grows the box to contain p.
func (b *BoundingBox) Extend(p mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
}

// Primitive is one indexed triangle list drawn with a single material.
type Primitive struct {
	Vertices      []Vertex
	Indices       []uint32
	MaterialIndex int
	Bounds        BoundingBox
}

type MeshNode struct {
	Name       string
	Primitives []Primitive
}

// Material is a base colour factor optionally multiplied by a texture.
// TextureIndex is -1 when untextured.
type Material struct {
	Name         string
	BaseColor    mgl32.Vec4
	TextureIndex int
	Metallic     float32
	Roughness    float32
}

// Texture holds raw RGBA8 pixels until the graphics context uploads them.
type Texture struct {
	Width  int
	Height int
	Pixels []byte
}

// Model is a decoded asset plus the set of live entities instancing it.
// It is owned by exactly one table at a time: the loader's response in
// flight, then the render thread's live model table.
type Model struct {
	Name      string
	Meshes    []MeshNode
	Textures  []Texture
	Materials []Material

	// Entities is the authoritative set of entities referencing this asset.
	Entities map[ecs.Entity]struct{}
	// EntitiesDirty is set whenever Entities changes; the renderer then
	// re-uploads every instance instead of patching.
	EntitiesDirty bool

	// GPU is the graphics context's handle for uploaded state, nil until
	// Upload.
	GPU any
}

func New(name string) *Model {
	return &Model{
		Name:          name,
		Entities:      make(map[ecs.Entity]struct{}),
		EntitiesDirty: true,
	}
}

// Empty reports whether the model carries no geometry. The resource manager
// uses empty models as membership-refresh notifications.
func (m *Model) Empty() bool {
	return len(m.Meshes) == 0
}

// AddEntities merges es into the entity set.
func (m *Model) AddEntities(es ...ecs.Entity) {
	if m.Entities == nil {
		m.Entities = make(map[ecs.Entity]struct{}, len(es))
	}
	for _, e := range es {
		if _, ok := m.Entities[e]; !ok {
			m.Entities[e] = struct{}{}
			m.EntitiesDirty = true
		}
	}
}

// RemoveEntities drops es from the entity set.
func (m *Model) RemoveEntities(es ...ecs.Entity) {
	for _, e := range es {
		if _, ok := m.Entities[e]; ok {
			delete(m.Entities, e)
			m.EntitiesDirty = true
		}
	}
}

// EntityList returns the entity set ordered by slot, the instance order used
// for instance buffers.
func (m *Model) EntityList() []ecs.Entity {
	out := make([]ecs.Entity, 0, len(m.Entities))
	for e := range m.Entities {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b ecs.Entity) int {
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Generation, b.Generation)
	})
	return out
}

// Bounds is the union of every primitive's bounding box.
func (m *Model) Bounds() BoundingBox {
	var b BoundingBox
	first := true
	for _, n := range m.Meshes {
		for _, p := range n.Primitives {
			if first {
				b = p.Bounds
				first = false
				continue
			}
			b.Extend(p.Bounds.Min)
			b.Extend(p.Bounds.Max)
		}
	}
	return b
}

// TriangleCount sums the triangles of every primitive.
func (m *Model) TriangleCount() int {
	n := 0
	for _, node := range m.Meshes {
		for _, p := range node.Primitives {
			n += len(p.Indices) / 3
		}
	}
	return n
}
