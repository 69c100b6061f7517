package renderer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gilgamesh/engine/internal/asset"
	"github.com/gilgamesh/engine/internal/core/deaddrop"
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/gfx"
	"github.com/gilgamesh/engine/internal/input"
	"github.com/gilgamesh/engine/internal/model"
	"github.com/gilgamesh/engine/internal/platform"
	"github.com/gilgamesh/engine/internal/resource"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap/zaptest"
)

const interval = 16 * time.Millisecond

// noLoads never has a completed load.
type noLoads struct{ err error }

func (n noLoads) TryIntegrateLoadedModels(map[string]*model.Model, resource.GraphicsContext) (bool, error) {
	return false, n.err
}

type fixture struct {
	loop     *Loop
	gfx      *gfx.Headless
	platform *platform.Headless
	in       *deaddrop.DeadDrop[*WorldState]
	events   *event.Queue[input.Event]
	running  *atomic.Bool
}

func newFixture(t *testing.T, resources ModelIntegrator, batches ...[]input.Event) *fixture {
	t.Helper()
	f := &fixture{
		gfx:      gfx.NewHeadless(80, 24),
		platform: platform.NewHeadless(80, 24, batches...),
		in:       deaddrop.New[*WorldState](),
		events:   event.NewQueue[input.Event](),
		running:  &atomic.Bool{},
	}
	f.running.Store(true)
	f.loop = NewLoop(f.gfx, f.platform, resources, f.in, f.events, f.running,
		Options{UpdateInterval: interval}, zaptest.NewLogger(t))
	return f
}

func (f *fixture) frame(t *testing.T, dt time.Duration) {
	t.Helper()
	if err := f.loop.Frame(dt); err != nil {
		t.Fatalf("Frame: %v", err)
	}
}

// liveModel uploads a model with the given entities into the live table.
func (f *fixture) liveModel(t *testing.T, path string, es ...ecs.Entity) *model.Model {
	t.Helper()
	m := model.New(path)
	m.Meshes = []model.MeshNode{{Name: path}}
	if err := f.gfx.Upload(m); err != nil {
		t.Fatal(err)
	}
	m.AddEntities(es...)
	f.loop.state.models[path] = m
	return m
}

func world(es ...ecs.Entity) *WorldState {
	ws := &WorldState{
		Camera:      &CameraState{View: mgl32.Ident4(), Projection: mgl32.Ident4()},
		Generations: make(map[ecs.EntityID]ecs.Generation),
		Transforms:  make(map[ecs.EntityID]mgl32.Mat4),
	}
	for i, e := range es {
		ws.Generations[e.ID] = e.Generation
		ws.Transforms[e.ID] = mgl32.Translate3D(float32(i), 0, 0)
	}
	return ws
}

func TestFrameAveragesLastThreeFrameTimes(t *testing.T) {
	f := newFixture(t, noLoads{})
	for _, dt := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		f.frame(t, dt)
	}
	if f.loop.state.avgDT != 20*time.Millisecond {
		t.Errorf("avg frame time = %s, want 20ms", f.loop.state.avgDT)
	}
	if fps := f.loop.state.FPS(); fps != 50 {
		t.Errorf("fps = %v, want 50", fps)
	}
	if f.gfx.Frames != 3 {
		t.Errorf("presented %d frames, want 3", f.gfx.Frames)
	}
}

func TestInputPollingIsThrottled(t *testing.T) {
	f := newFixture(t, noLoads{}, []input.Event{input.KeyDown(input.ScancodeW)})
	f.frame(t, interval/2)
	if f.platform.Polls != 0 {
		t.Fatal("polled before the update interval elapsed")
	}
	f.frame(t, interval)
	if f.platform.Polls != 1 {
		t.Fatalf("polls = %d, want 1", f.platform.Polls)
	}
	got := f.events.Consume()
	if len(got) != 1 || got[0].Scancode != input.ScancodeW {
		t.Errorf("forwarded %+v, want W down", got)
	}
}

func TestEscapeTogglesCaptureLocally(t *testing.T) {
	f := newFixture(t, noLoads{},
		[]input.Event{input.KeyDown(input.ScancodeEscape), input.Quit()},
	)
	f.platform.Hold([]input.ScancodeState{{Scancode: input.ScancodeW, Pressed: true}}, 3, -2)
	f.frame(t, 2*interval)

	if !f.platform.RelativeMouseMode() {
		t.Fatal("escape did not enable capture")
	}
	got := f.events.Consume()
	if len(got) != 2 {
		t.Fatalf("forwarded %+v, want quit and a frame event", got)
	}
	if got[0].Kind != input.KindQuit {
		t.Errorf("first event = %+v, want quit", got[0])
	}
	fe := got[1]
	if fe.Kind != input.KindFrame || fe.MouseDX != 3 || fe.MouseDY != -2 || len(fe.Scancodes) != 1 {
		t.Errorf("frame event = %+v", fe)
	}
}

func TestInstancesUploadedThenPatched(t *testing.T) {
	f := newFixture(t, noLoads{})
	a := ecs.Entity{ID: 0, Generation: 1}
	b := ecs.Entity{ID: 1, Generation: 2}
	m := f.liveModel(t, "crate.yaml", a, b)

	ws := world(a, b)
	f.in.Send(ws)
	f.frame(t, time.Millisecond)
	if f.gfx.InstanceUploads != 1 || f.gfx.Draws["crate.yaml"] != 2 {
		t.Fatalf("uploads = %d, draws = %d", f.gfx.InstanceUploads, f.gfx.Draws["crate.yaml"])
	}
	if m.EntitiesDirty {
		t.Error("dirty flag not cleared after upload")
	}

	// Same snapshot again: nothing to do.
	f.frame(t, time.Millisecond)
	if f.gfx.InstanceUploads != 1 || f.gfx.Patches != 0 {
		t.Fatalf("redundant work: uploads = %d, patches = %d", f.gfx.InstanceUploads, f.gfx.Patches)
	}

	moved := world(a, b)
	moved.Transforms[b.ID] = mgl32.Translate3D(0, 9, 0)
	f.in.Send(moved)
	f.frame(t, time.Millisecond)
	if f.gfx.InstanceUploads != 1 || f.gfx.Patches != 1 {
		t.Fatalf("after move: uploads = %d, patches = %d, want 1 and 1", f.gfx.InstanceUploads, f.gfx.Patches)
	}
	if y := f.gfx.Instances(m)[1].Col(3).Y(); y != 9 {
		t.Errorf("patched instance y = %v, want 9", y)
	}

	c := ecs.Entity{ID: 2, Generation: 3}
	m.AddEntities(c)
	f.in.Send(world(a, b, c))
	f.frame(t, time.Millisecond)
	if f.gfx.InstanceUploads != 2 || len(f.gfx.Instances(m)) != 3 {
		t.Errorf("membership change: uploads = %d, instances = %d", f.gfx.InstanceUploads, len(f.gfx.Instances(m)))
	}
}

func TestStaleEntitiesAreNotDrawn(t *testing.T) {
	f := newFixture(t, noLoads{})
	a := ecs.Entity{ID: 0, Generation: 1}
	b := ecs.Entity{ID: 1, Generation: 2}
	m := f.liveModel(t, "crate.yaml", a, b)
	f.in.Send(world(a, b))
	f.frame(t, time.Millisecond)

	// b's slot now holds a newer entity.
	recycled := world(a, b)
	recycled.Generations[b.ID] = 7
	f.in.Send(recycled)
	f.frame(t, time.Millisecond)
	if n := len(f.gfx.Instances(m)); n != 1 {
		t.Fatalf("instances = %d, want 1", n)
	}
	if f.gfx.InstanceUploads != 2 {
		t.Errorf("uploads = %d, want a rebuild", f.gfx.InstanceUploads)
	}
}

func TestLightsUploadedOnlyWhenChanged(t *testing.T) {
	f := newFixture(t, noLoads{})
	ws := world()
	ws.Lights = []gfx.ShaderLight{{Color: mgl32.Vec3{1, 0, 0}}}
	ws.LightsVersion = 1
	f.in.Send(ws)
	f.frame(t, time.Millisecond)
	if f.gfx.LightUploads != 1 || len(f.gfx.Lights) != 1 {
		t.Fatalf("light uploads = %d, lights = %d", f.gfx.LightUploads, len(f.gfx.Lights))
	}

	same := world()
	same.Lights = ws.Lights
	same.LightsVersion = 1
	f.in.Send(same)
	f.frame(t, time.Millisecond)
	if f.gfx.LightUploads != 1 {
		t.Error("unchanged lights re-uploaded")
	}

	changed := world()
	changed.LightsVersion = 2
	f.in.Send(changed)
	f.frame(t, time.Millisecond)
	if f.gfx.LightUploads != 2 || len(f.gfx.Lights) != 0 {
		t.Errorf("changed lights not uploaded: uploads = %d, lights = %d", f.gfx.LightUploads, len(f.gfx.Lights))
	}
}

func TestOverlayReportsStats(t *testing.T) {
	f := newFixture(t, noLoads{})
	a := ecs.Entity{ID: 0, Generation: 1}
	f.liveModel(t, "crate.yaml", a)
	ws := world(a)
	ws.Entities = 1
	f.in.Send(ws)
	f.frame(t, 10*time.Millisecond)

	want := "models 1  instances 1"
	found := false
	for _, line := range f.gfx.Overlay {
		if line == want {
			found = true
		}
	}
	if !found {
		t.Errorf("overlay %q lacks %q", f.gfx.Overlay, want)
	}
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	f := newFixture(t, noLoads{})
	f.loop.opts.MaxFrames = 5
	a := ecs.Entity{ID: 0, Generation: 1}
	m := f.liveModel(t, "crate.yaml", a)

	if err := f.loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.gfx.Frames != 5 {
		t.Errorf("frames = %d, want 5", f.gfx.Frames)
	}
	if f.running.Load() {
		t.Error("running flag still set")
	}
	if m.GPU != nil || f.gfx.Releases != 1 {
		t.Error("live models not released on exit")
	}
}

func TestRunReturnsIntegrationError(t *testing.T) {
	errCorrupt := errors.New("corrupt")
	f := newFixture(t, noLoads{err: errCorrupt})
	err := f.loop.Run()
	if !errors.Is(err, errCorrupt) {
		t.Fatalf("Run = %v, want %v", err, errCorrupt)
	}
	if f.running.Load() {
		t.Error("running flag still set after failure")
	}
}

func TestLoadedModelIsDrawn(t *testing.T) {
	decoder := asset.DecodeFunc(func(path string) (*model.Model, error) {
		m := model.New(path)
		m.Meshes = []model.MeshNode{{Name: path}}
		return m, nil
	})
	rm := resource.New(decoder, resource.Options{Workers: 1}, zaptest.NewLogger(t))
	t.Cleanup(rm.Close)

	f := newFixture(t, rm)
	a := ecs.Entity{ID: 0, Generation: 1}
	b := ecs.Entity{ID: 1, Generation: 2}
	if err := rm.RequestModels([]resource.Request{{Path: "crate.yaml", Entity: a}, {Path: "crate.yaml", Entity: b}}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rm.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	f.in.Send(world(a, b))
	deadline := time.Now().Add(2 * time.Second)
	for f.gfx.Draws["crate.yaml"] == 0 && time.Now().Before(deadline) {
		f.frame(t, time.Millisecond)
	}
	if f.gfx.Uploads != 1 {
		t.Errorf("uploads = %d, want 1", f.gfx.Uploads)
	}
	if got := f.gfx.Draws["crate.yaml"]; got != 2 {
		t.Errorf("drawn instances = %d, want 2", got)
	}
}
