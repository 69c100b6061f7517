package gfx

import (
	"fmt"

	"github.com/gilgamesh/engine/internal/model"
	"github.com/go-gl/mathgl/mgl32"
)

// Headless records what would have been drawn. It backs the headless
// backend and the render loop tests.
type Headless struct {
	Width, Height int

	Uploads         int
	Releases        int
	InstanceUploads int
	Patches         int
	Frames          int
	LightUploads    int
	Draws           map[string]int
	Lights          []ShaderLight
	Overlay         []string

	// FailUpload makes Upload return an error for the named model.
	FailUpload string
}

type headlessModel struct {
	instances []mgl32.Mat4
}

func NewHeadless(width, height int) *Headless {
	return &Headless{Width: width, Height: height, Draws: make(map[string]int)}
}

func (h *Headless) Upload(m *model.Model) error {
	if m.Name == h.FailUpload {
		return fmt.Errorf("upload %s: rejected", m.Name)
	}
	m.GPU = &headlessModel{}
	h.Uploads++
	return nil
}

func (h *Headless) Release(m *model.Model) {
	m.GPU = nil
	h.Releases++
}

func (h *Headless) UploadInstances(m *model.Model, transforms []mgl32.Mat4) {
	hm, ok := m.GPU.(*headlessModel)
	if !ok {
		return
	}
	hm.instances = append(hm.instances[:0], transforms...)
	h.InstanceUploads++
}

func (h *Headless) PatchInstance(m *model.Model, index int, transform mgl32.Mat4) {
	hm, ok := m.GPU.(*headlessModel)
	if !ok || index < 0 || index >= len(hm.instances) {
		return
	}
	hm.instances[index] = transform
	h.Patches++
}

// Instances returns m's current instance buffer.
func (h *Headless) Instances(m *model.Model) []mgl32.Mat4 {
	if hm, ok := m.GPU.(*headlessModel); ok {
		return hm.instances
	}
	return nil
}

func (h *Headless) BeginFrame() {}

func (h *Headless) SetLights(lights []ShaderLight) {
	h.Lights = append(h.Lights[:0], lights...)
	h.LightUploads++
}

func (h *Headless) DrawInstanced(m *model.Model, _, _ mgl32.Mat4, count int) {
	h.Draws[m.Name] += count
}

func (h *Headless) DrawOverlay(lines []string) {
	h.Overlay = append(h.Overlay[:0], lines...)
}

func (h *Headless) Present() { h.Frames++ }

func (h *Headless) Size() (int, int) { return h.Width, h.Height }
