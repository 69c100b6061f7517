package gfx

import (
	"fmt"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/gilgamesh/engine/internal/model"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// litThreshold is the light intensity above which an instance is drawn bold.
const litThreshold = 0.25

// terminalModel is the handle Terminal stores in Model.GPU.
type terminalModel struct {
	glyph     rune
	style     tcell.Style
	center    mgl32.Vec4
	instances []mgl32.Mat4
}

// Terminal rasterises each instance as a single glyph at the projected
// centre of its model's bounding box.
type Terminal struct {
	screen       tcell.Screen
	log          *zap.Logger
	maxInstances int
	lights       []ShaderLight
	overlay      tcell.Style
}

// NewTerminal draws onto an initialised screen. maxInstances caps each
// model's instance buffer.
func NewTerminal(screen tcell.Screen, maxInstances int, log *zap.Logger) *Terminal {
	return &Terminal{
		screen:       screen,
		log:          log.Named("gfx"),
		maxInstances: maxInstances,
		overlay:      tcell.StyleDefault.Foreground(tcell.ColorYellow),
	}
}

func (t *Terminal) Upload(m *model.Model) error {
	if m.GPU != nil {
		return fmt.Errorf("upload %s: already uploaded", m.Name)
	}
	b := m.Bounds()
	c := b.Min.Add(b.Max).Mul(0.5)
	h := &terminalModel{
		glyph:  glyphFor(m.Name),
		style:  tcell.StyleDefault,
		center: c.Vec4(1),
	}
	if len(m.Materials) > 0 {
		bc := m.Materials[0].BaseColor
		h.style = h.style.Foreground(tcell.NewRGBColor(channel(bc.X()), channel(bc.Y()), channel(bc.Z())))
	}
	m.GPU = h
	t.log.Debug("model uploaded",
		zap.String("model", m.Name),
		zap.Int("triangles", m.TriangleCount()),
		zap.Int("textures", len(m.Textures)))
	return nil
}

func (t *Terminal) Release(m *model.Model) {
	m.GPU = nil
	t.log.Debug("model released", zap.String("model", m.Name))
}

func (t *Terminal) UploadInstances(m *model.Model, transforms []mgl32.Mat4) {
	h, ok := m.GPU.(*terminalModel)
	if !ok {
		return
	}
	if t.maxInstances > 0 && len(transforms) > t.maxInstances {
		t.log.Warn("instance buffer overflow",
			zap.String("model", m.Name),
			zap.Int("instances", len(transforms)),
			zap.Int("capacity", t.maxInstances))
		transforms = transforms[:t.maxInstances]
	}
	h.instances = append(h.instances[:0], transforms...)
}

func (t *Terminal) PatchInstance(m *model.Model, index int, transform mgl32.Mat4) {
	h, ok := m.GPU.(*terminalModel)
	if !ok || index < 0 || index >= len(h.instances) {
		return
	}
	h.instances[index] = transform
}

func (t *Terminal) BeginFrame() { t.screen.Clear() }

func (t *Terminal) SetLights(lights []ShaderLight) {
	t.lights = append(t.lights[:0], lights...)
}

func (t *Terminal) DrawInstanced(m *model.Model, view, projection mgl32.Mat4, count int) {
	h, ok := m.GPU.(*terminalModel)
	if !ok {
		return
	}
	w, ht := t.screen.Size()
	viewProj := projection.Mul4(view)
	for i := 0; i < min(count, len(h.instances)); i++ {
		world := h.instances[i].Mul4x1(h.center)
		x, y, visible := project(viewProj, world, w, ht)
		if !visible {
			continue
		}
		style := h.style
		if t.lit(world.Vec3()) {
			style = style.Bold(true)
		}
		t.screen.SetContent(x, y, h.glyph, nil, style)
	}
}

func (t *Terminal) lit(p mgl32.Vec3) bool {
	for _, l := range t.lights {
		if l.Intensity(p) >= litThreshold {
			return true
		}
	}
	return false
}

func (t *Terminal) DrawOverlay(lines []string) {
	for row, line := range lines {
		col := 0
		for _, r := range line {
			t.screen.SetContent(col, row, r, nil, t.overlay)
			col++
		}
	}
}

func (t *Terminal) Present() { t.screen.Show() }

func (t *Terminal) Size() (int, int) { return t.screen.Size() }

// project maps a world point to a cell. Points behind the camera or outside
// the clip volume are not visible.
func project(viewProj mgl32.Mat4, world mgl32.Vec4, width, height int) (int, int, bool) {
	clip := viewProj.Mul4x1(world)
	if clip.W() <= 0 {
		return 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	if ndc.X() < -1 || ndc.X() > 1 || ndc.Y() < -1 || ndc.Y() > 1 || ndc.Z() < -1 || ndc.Z() > 1 {
		return 0, 0, false
	}
	x := int((ndc.X() + 1) / 2 * float32(width-1))
	y := int((1 - ndc.Y()) / 2 * float32(height-1))
	return x, y, true
}

func glyphFor(name string) rune {
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
	}
	return '#'
}

func channel(f float32) int32 {
	return int32(mgl32.Clamp(f, 0, 1) * 255)
}
