package asset

import (
	"encoding/hex"
	"fmt"

	"github.com/gilgamesh/engine/internal/model"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

type yamlPrimitive struct {
	Material  int          `yaml:"material"`
	Positions [][3]float32 `yaml:"positions"`
	Normals   [][3]float32 `yaml:"normals"`
	UVs       [][2]float32 `yaml:"uvs"`
	Indices   []uint32     `yaml:"indices"`
}

type yamlMesh struct {
	Name       string          `yaml:"name"`
	Primitives []yamlPrimitive `yaml:"primitives"`
}

type yamlMaterial struct {
	Name      string     `yaml:"name"`
	BaseColor [4]float32 `yaml:"base_color"`
	Texture   *int       `yaml:"texture"`
	Metallic  float32    `yaml:"metallic"`
	Roughness float32    `yaml:"roughness"`
}

type yamlTexture struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Pixels string `yaml:"pixels"` // hex-encoded RGBA8
}

type yamlModelFile struct {
	Name      string         `yaml:"name"`
	Meshes    []yamlMesh     `yaml:"meshes"`
	Materials []yamlMaterial `yaml:"materials"`
	Textures  []yamlTexture  `yaml:"textures"`
}

// DecodeYAML parses and validates one model document.
func DecodeYAML(raw []byte) (*model.Model, error) {
	var f yamlModelFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(f.Meshes) == 0 {
		return nil, ErrNoMeshes
	}

	m := model.New(f.Name)
	for i, yt := range f.Textures {
		tex, err := decodeTexture(yt)
		if err != nil {
			return nil, fmt.Errorf("texture %d: %w", i, err)
		}
		m.Textures = append(m.Textures, tex)
	}
	for i, ym := range f.Materials {
		mat := model.Material{
			Name:         ym.Name,
			BaseColor:    mgl32.Vec4(ym.BaseColor),
			TextureIndex: -1,
			Metallic:     ym.Metallic,
			Roughness:    ym.Roughness,
		}
		if ym.Texture != nil {
			if *ym.Texture < 0 || *ym.Texture >= len(m.Textures) {
				return nil, fmt.Errorf("material %d: texture %d out of range: %w", i, *ym.Texture, ErrInvalidModel)
			}
			mat.TextureIndex = *ym.Texture
		}
		m.Materials = append(m.Materials, mat)
	}
	if len(m.Materials) == 0 {
		m.Materials = append(m.Materials, model.Material{
			Name:         "default",
			BaseColor:    mgl32.Vec4{1, 1, 1, 1},
			TextureIndex: -1,
			Roughness:    1,
		})
	}

	for i, ymesh := range f.Meshes {
		node := model.MeshNode{Name: ymesh.Name}
		for j, yp := range ymesh.Primitives {
			p, err := decodePrimitive(yp, len(m.Materials))
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", i, j, err)
			}
			node.Primitives = append(node.Primitives, p)
		}
		m.Meshes = append(m.Meshes, node)
	}
	return m, nil
}

func decodeTexture(yt yamlTexture) (model.Texture, error) {
	if yt.Width <= 0 || yt.Height <= 0 {
		return model.Texture{}, fmt.Errorf("size %dx%d: %w", yt.Width, yt.Height, ErrInvalidModel)
	}
	px, err := hex.DecodeString(yt.Pixels)
	if err != nil {
		return model.Texture{}, fmt.Errorf("pixels: %w", err)
	}
	if len(px) != yt.Width*yt.Height*4 {
		return model.Texture{}, fmt.Errorf("pixels: got %d bytes for %dx%d RGBA: %w", len(px), yt.Width, yt.Height, ErrInvalidModel)
	}
	return model.Texture{Width: yt.Width, Height: yt.Height, Pixels: px}, nil
}

func decodePrimitive(yp yamlPrimitive, materials int) (model.Primitive, error) {
	if len(yp.Positions) == 0 {
		return model.Primitive{}, fmt.Errorf("no positions: %w", ErrInvalidModel)
	}
	if yp.Material < 0 || yp.Material >= materials {
		return model.Primitive{}, fmt.Errorf("material %d out of range: %w", yp.Material, ErrInvalidModel)
	}
	if len(yp.Normals) != 0 && len(yp.Normals) != len(yp.Positions) {
		return model.Primitive{}, fmt.Errorf("%d normals for %d positions: %w", len(yp.Normals), len(yp.Positions), ErrInvalidModel)
	}
	if len(yp.UVs) != 0 && len(yp.UVs) != len(yp.Positions) {
		return model.Primitive{}, fmt.Errorf("%d uvs for %d positions: %w", len(yp.UVs), len(yp.Positions), ErrInvalidModel)
	}

	p := model.Primitive{
		Vertices:      make([]model.Vertex, len(yp.Positions)),
		Indices:       yp.Indices,
		MaterialIndex: yp.Material,
	}
	for i, pos := range yp.Positions {
		v := model.Vertex{Position: mgl32.Vec3(pos)}
		if len(yp.Normals) > 0 {
			v.Normal = mgl32.Vec3(yp.Normals[i])
		}
		if len(yp.UVs) > 0 {
			v.UV = mgl32.Vec2(yp.UVs[i])
		}
		p.Vertices[i] = v
		if i == 0 {
			p.Bounds = model.BoundingBox{Min: v.Position, Max: v.Position}
		} else {
			p.Bounds.Extend(v.Position)
		}
	}

	if len(p.Indices) == 0 {
		p.Indices = make([]uint32, len(p.Vertices))
		for i := range p.Indices {
			p.Indices[i] = uint32(i)
		}
	}
	if len(p.Indices)%3 != 0 {
		return model.Primitive{}, fmt.Errorf("%d indices is not a triangle list: %w", len(p.Indices), ErrInvalidModel)
	}
	for _, idx := range p.Indices {
		if int(idx) >= len(p.Vertices) {
			return model.Primitive{}, fmt.Errorf("index %d out of range: %w", idx, ErrInvalidModel)
		}
	}
	return p, nil
}

// EncodeYAML writes m in the YAML model format.
func EncodeYAML(m *model.Model) ([]byte, error) {
	f := yamlModelFile{Name: m.Name}
	for _, t := range m.Textures {
		f.Textures = append(f.Textures, yamlTexture{
			Width:  t.Width,
			Height: t.Height,
			Pixels: hex.EncodeToString(t.Pixels),
		})
	}
	for _, mat := range m.Materials {
		ym := yamlMaterial{
			Name:      mat.Name,
			BaseColor: [4]float32(mat.BaseColor),
			Metallic:  mat.Metallic,
			Roughness: mat.Roughness,
		}
		if mat.TextureIndex >= 0 {
			idx := mat.TextureIndex
			ym.Texture = &idx
		}
		f.Materials = append(f.Materials, ym)
	}
	for _, node := range m.Meshes {
		ymesh := yamlMesh{Name: node.Name}
		for _, p := range node.Primitives {
			yp := yamlPrimitive{Material: p.MaterialIndex, Indices: p.Indices}
			for _, v := range p.Vertices {
				yp.Positions = append(yp.Positions, [3]float32(v.Position))
				yp.Normals = append(yp.Normals, [3]float32(v.Normal))
				yp.UVs = append(yp.UVs, [2]float32(v.UV))
			}
			ymesh.Primitives = append(ymesh.Primitives, yp)
		}
		f.Meshes = append(f.Meshes, ymesh)
	}
	out, err := yaml.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("encode model %s: %w", m.Name, err)
	}
	return out, nil
}
