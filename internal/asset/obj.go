package asset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gilgamesh/engine/internal/model"
	"github.com/go-gl/mathgl/mgl32"
)

// objKey identifies a face corner; -1 marks an absent uv or normal.
type objKey struct {
	v, vt, vn int
}

type objPrimitive struct {
	material int
	vertices []model.Vertex
	indices  []uint32
	lookup   map[objKey]uint32
}

type objReader struct {
	m         *model.Model
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	uvs       []mgl32.Vec2
	materials map[string]int
	material  int

	name   string
	prims  []*objPrimitive
	faces  int
	closed int
}

// DecodeOBJ parses a Wavefront OBJ stream. Each o or g statement starts a new
// mesh node; usemtl switches the material, creating a plain white one for
// each new name. Polygons are fan-triangulated.
func DecodeOBJ(r io.Reader) (*model.Model, error) {
	or := &objReader{
		m:         model.New(""),
		materials: make(map[string]int),
		material:  -1,
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if err := or.statement(sc.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	or.closeNode()
	if len(or.m.Meshes) == 0 {
		return nil, ErrNoMeshes
	}
	return or.m, nil
}

func (or *objReader) statement(text string) error {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	args := fields[1:]
	switch fields[0] {
	case "v":
		p, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		or.positions = append(or.positions, mgl32.Vec3{p[0], p[1], p[2]})
	case "vn":
		n, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		or.normals = append(or.normals, mgl32.Vec3{n[0], n[1], n[2]})
	case "vt":
		t, err := parseFloats(args, 2)
		if err != nil {
			return err
		}
		or.uvs = append(or.uvs, mgl32.Vec2{t[0], t[1]})
	case "o", "g":
		or.closeNode()
		or.name = strings.Join(args, " ")
		if fields[0] == "o" && or.m.Name == "" {
			or.m.Name = or.name
		}
	case "usemtl":
		if len(args) == 0 {
			return fmt.Errorf("usemtl without name: %w", ErrInvalidModel)
		}
		or.useMaterial(args[0])
	case "f":
		return or.face(args)
	}
	// mtllib, s, l, p and the rest carry nothing the engine draws.
	return nil
}

func (or *objReader) useMaterial(name string) {
	if idx, ok := or.materials[name]; ok {
		or.material = idx
		return
	}
	or.m.Materials = append(or.m.Materials, model.Material{
		Name:         name,
		BaseColor:    mgl32.Vec4{1, 1, 1, 1},
		TextureIndex: -1,
		Roughness:    1,
	})
	or.material = len(or.m.Materials) - 1
	or.materials[name] = or.material
}

func (or *objReader) face(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("face with %d corners: %w", len(args), ErrInvalidModel)
	}
	if or.material < 0 {
		or.useMaterial("default")
	}
	prim := or.primitive(or.material)

	corners := make([]uint32, len(args))
	for i, a := range args {
		k, err := or.corner(a)
		if err != nil {
			return err
		}
		idx, ok := prim.lookup[k]
		if !ok {
			v := model.Vertex{Position: or.positions[k.v]}
			if k.vt >= 0 {
				v.UV = or.uvs[k.vt]
			}
			if k.vn >= 0 {
				v.Normal = or.normals[k.vn]
			}
			idx = uint32(len(prim.vertices))
			prim.vertices = append(prim.vertices, v)
			prim.lookup[k] = idx
		}
		corners[i] = idx
	}
	for i := 1; i+1 < len(corners); i++ {
		prim.indices = append(prim.indices, corners[0], corners[i], corners[i+1])
	}
	or.faces++
	return nil
}

// corner parses v, v/vt, v//vn or v/vt/vn. Negative indices count back from
// the most recent element.
func (or *objReader) corner(s string) (objKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) > 3 {
		return objKey{}, fmt.Errorf("face corner %q: %w", s, ErrInvalidModel)
	}
	k := objKey{v: -1, vt: -1, vn: -1}
	var err error
	if k.v, err = resolveIndex(parts[0], len(or.positions)); err != nil {
		return objKey{}, fmt.Errorf("face corner %q: %w", s, err)
	}
	if k.v < 0 {
		return objKey{}, fmt.Errorf("face corner %q has no position: %w", s, ErrInvalidModel)
	}
	if len(parts) > 1 {
		if k.vt, err = resolveIndex(parts[1], len(or.uvs)); err != nil {
			return objKey{}, fmt.Errorf("face corner %q: %w", s, err)
		}
	}
	if len(parts) > 2 {
		if k.vn, err = resolveIndex(parts[2], len(or.normals)); err != nil {
			return objKey{}, fmt.Errorf("face corner %q: %w", s, err)
		}
	}
	return k, nil
}

func resolveIndex(s string, n int) (int, error) {
	if s == "" {
		return -1, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case i > 0 && i <= n:
		return i - 1, nil
	case i < 0 && -i <= n:
		return n + i, nil
	}
	return 0, fmt.Errorf("index %d of %d: %w", i, n, ErrInvalidModel)
}

func (or *objReader) primitive(material int) *objPrimitive {
	for _, p := range or.prims {
		if p.material == material {
			return p
		}
	}
	p := &objPrimitive{material: material, lookup: make(map[objKey]uint32)}
	or.prims = append(or.prims, p)
	return p
}

// closeNode turns the faces read since the last o/g into a mesh node.
func (or *objReader) closeNode() {
	if or.faces > 0 {
		node := model.MeshNode{Name: or.name}
		if node.Name == "" {
			node.Name = fmt.Sprintf("mesh%d", or.closed)
		}
		for _, op := range or.prims {
			if len(op.indices) == 0 {
				continue
			}
			p := model.Primitive{
				Vertices:      op.vertices,
				Indices:       op.indices,
				MaterialIndex: op.material,
				Bounds:        model.BoundingBox{Min: op.vertices[0].Position, Max: op.vertices[0].Position},
			}
			for _, v := range op.vertices[1:] {
				p.Bounds.Extend(v.Position)
			}
			node.Primitives = append(node.Primitives, p)
		}
		or.m.Meshes = append(or.m.Meshes, node)
		or.closed++
	}
	or.prims = nil
	or.faces = 0
}

func parseFloats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, fmt.Errorf("want %d values, got %d: %w", n, len(args), ErrInvalidModel)
	}
	out := make([]float32, n)
	for i := range out {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}
