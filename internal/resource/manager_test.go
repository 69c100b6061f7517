package resource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var errCorrupt = errors.New("corrupt asset")

// fakeDecoder counts decodes per path. When gate is non-nil every decode
// blocks until it is closed; started receives each path as decoding begins.
type fakeDecoder struct {
	mu      sync.Mutex
	calls   map[string]int
	started chan string
	gate    chan struct{}
}

func newFakeDecoder(gated bool) *fakeDecoder {
	d := &fakeDecoder{calls: make(map[string]int), started: make(chan string, 16)}
	if gated {
		d.gate = make(chan struct{})
	}
	return d
}

func (d *fakeDecoder) Decode(path string) (*model.Model, error) {
	d.mu.Lock()
	d.calls[path]++
	d.mu.Unlock()
	d.started <- path
	if d.gate != nil {
		<-d.gate
	}
	if path == "bad.yaml" {
		return nil, errCorrupt
	}
	m := model.New(path)
	m.Meshes = []model.MeshNode{{Name: "body", Primitives: []model.Primitive{{
		Vertices: make([]model.Vertex, 3),
		Indices:  []uint32{0, 1, 2},
	}}}}
	return m, nil
}

func (d *fakeDecoder) Calls(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[path]
}

type fakeGraphics struct {
	uploads  int
	releases int
}

func (g *fakeGraphics) Upload(m *model.Model) error {
	g.uploads++
	m.GPU = g.uploads
	return nil
}

func (g *fakeGraphics) Release(m *model.Model) {
	g.releases++
	m.GPU = nil
}

func newTestManager(t *testing.T, d *fakeDecoder, log *zap.Logger) *Manager {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	m := New(d, Options{Workers: 2}, log)
	t.Cleanup(func() {
		if d.gate != nil {
			select {
			case <-d.gate:
			default:
				close(d.gate)
			}
		}
		m.Close()
	})
	return m
}

func syncWorker(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func integrateOne(t *testing.T, m *Manager, live map[string]*model.Model, g *fakeGraphics) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok, err := m.TryIntegrateLoadedModels(live, g)
		if err != nil {
			t.Fatalf("TryIntegrateLoadedModels: %v", err)
		}
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for an integration")
}

func assertEntities(t *testing.T, got map[ecs.Entity]struct{}, want ...ecs.Entity) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("entities = %v, want %v", got, want)
	}
	for _, e := range want {
		if _, ok := got[e]; !ok {
			t.Fatalf("entities = %v, missing %v", got, e)
		}
	}
}

var (
	entA = ecs.Entity{ID: 0, Generation: 1}
	entB = ecs.Entity{ID: 1, Generation: 2}
	entC = ecs.Entity{ID: 2, Generation: 3}
)

func TestDedupWithinBatch(t *testing.T) {
	d := newFakeDecoder(false)
	m := newTestManager(t, d, nil)
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	if err := m.RequestModels([]Request{{"cube.yaml", entA}, {"cube.yaml", entB}}); err != nil {
		t.Fatal(err)
	}
	integrateOne(t, m, live, g)

	if m.Loads() != 1 || d.Calls("cube.yaml") != 1 {
		t.Fatalf("loads = %d, decodes = %d; want 1, 1", m.Loads(), d.Calls("cube.yaml"))
	}
	lm, ok := live["cube.yaml"]
	if !ok {
		t.Fatal("model not integrated")
	}
	assertEntities(t, lm.Entities, entA, entB)
	if !lm.EntitiesDirty || lm.GPU == nil {
		t.Errorf("integrated model: dirty=%v gpu=%v", lm.EntitiesDirty, lm.GPU)
	}
	if st, ok := m.State("cube.yaml"); !ok || st != Loaded {
		t.Errorf("State = %v, %v; want loaded", st, ok)
	}
}

func TestLateJoinerWhileLoading(t *testing.T) {
	d := newFakeDecoder(true)
	m := newTestManager(t, d, nil)
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	m.RequestModels([]Request{{"ship.yaml", entA}})
	<-d.started
	m.RequestModels([]Request{{"ship.yaml", entB}})
	syncWorker(t, m)

	if st, _ := m.State("ship.yaml"); st != Loading {
		t.Fatalf("State = %v, want loading", st)
	}
	close(d.gate)
	integrateOne(t, m, live, g)

	assertEntities(t, live["ship.yaml"].Entities, entA, entB)
	if m.Loads() != 1 || d.Calls("ship.yaml") != 1 {
		t.Fatalf("loads = %d, decodes = %d; want 1, 1", m.Loads(), d.Calls("ship.yaml"))
	}
}

func TestRequestForLoadedPathRefreshes(t *testing.T) {
	d := newFakeDecoder(false)
	m := newTestManager(t, d, nil)
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	m.RequestModels([]Request{{"rock.yaml", entA}})
	integrateOne(t, m, live, g)
	live["rock.yaml"].EntitiesDirty = false

	m.RequestModels([]Request{{"rock.yaml", entB}, {"rock.yaml", entC}})
	integrateOne(t, m, live, g)

	lm := live["rock.yaml"]
	assertEntities(t, lm.Entities, entA, entB, entC)
	if !lm.EntitiesDirty {
		t.Error("refresh did not mark dirty")
	}
	if g.uploads != 1 || m.Loads() != 1 {
		t.Errorf("uploads = %d, loads = %d; want 1, 1", g.uploads, m.Loads())
	}
	if ok, _ := m.TryIntegrateLoadedModels(live, g); ok {
		t.Error("one batch produced more than one refresh")
	}
}

func TestUnloadDrainsRegistry(t *testing.T) {
	d := newFakeDecoder(false)
	m := newTestManager(t, d, nil)
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	m.RequestModels([]Request{{"tree.yaml", entA}})
	integrateOne(t, m, live, g)

	m.RequestUnloadModels([]Request{{"tree.yaml", entA}})
	syncWorker(t, m)
	if _, ok := m.State("tree.yaml"); ok {
		t.Fatal("registry entry survived its last unload")
	}

	integrateOne(t, m, live, g)
	if _, ok := live["tree.yaml"]; ok {
		t.Fatal("live model survived its last unload")
	}
	if g.releases != 1 {
		t.Errorf("releases = %d, want 1", g.releases)
	}

	m.RequestModels([]Request{{"tree.yaml", entB}})
	integrateOne(t, m, live, g)
	if m.Loads() != 2 {
		t.Fatalf("loads = %d, want a fresh second load", m.Loads())
	}
	assertEntities(t, live["tree.yaml"].Entities, entB)
}

func TestPartialUnloadKeepsModel(t *testing.T) {
	d := newFakeDecoder(false)
	m := newTestManager(t, d, nil)
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	m.RequestModels([]Request{{"crate.yaml", entA}, {"crate.yaml", entB}})
	integrateOne(t, m, live, g)

	m.RequestUnloadModels([]Request{{"crate.yaml", entA}, {"crate.yaml", entC}})
	integrateOne(t, m, live, g)

	assertEntities(t, live["crate.yaml"].Entities, entB)
	if users := m.Users("crate.yaml"); len(users) != 1 || users[0] != entB {
		t.Errorf("Users = %v, want [%v]", users, entB)
	}
	if g.releases != 0 {
		t.Errorf("releases = %d, want 0", g.releases)
	}
}

func TestOrphanedLoadIsDropped(t *testing.T) {
	d := newFakeDecoder(true)
	core, logs := observer.New(zapcore.WarnLevel)
	m := newTestManager(t, d, zap.New(core))
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	m.RequestModels([]Request{{"ghost.yaml", entA}})
	<-d.started
	m.RequestUnloadModels([]Request{{"ghost.yaml", entA}})
	syncWorker(t, m)
	close(d.gate)

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("dropping load result for unregistered path").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("orphaned result never consumed")
		}
		ok, err := m.TryIntegrateLoadedModels(live, g)
		if err != nil || ok {
			t.Fatalf("TryIntegrateLoadedModels = %v, %v; want false, nil", ok, err)
		}
		time.Sleep(time.Millisecond)
	}
	if len(live) != 0 || g.uploads != 0 {
		t.Errorf("orphan integrated: live=%d uploads=%d", len(live), g.uploads)
	}
}

func TestReRequestAfterUnloadWhileLoading(t *testing.T) {
	d := newFakeDecoder(true)
	m := newTestManager(t, d, nil)
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	m.RequestModels([]Request{{"bolt.yaml", entA}})
	<-d.started
	m.RequestUnloadModels([]Request{{"bolt.yaml", entA}})
	m.RequestModels([]Request{{"bolt.yaml", entB}})
	<-d.started
	close(d.gate)

	integrateOne(t, m, live, g)
	integrateOne(t, m, live, g)

	if m.Loads() != 2 {
		t.Fatalf("loads = %d, want 2", m.Loads())
	}
	if g.uploads != 1 {
		t.Errorf("uploads = %d, want 1 (second completion merges)", g.uploads)
	}
	assertEntities(t, live["bolt.yaml"].Entities, entB)
}

func TestDecodeFailureSurfaces(t *testing.T) {
	d := newFakeDecoder(false)
	m := newTestManager(t, d, zap.NewNop())
	g := &fakeGraphics{}
	live := map[string]*model.Model{}

	m.RequestModels([]Request{{"bad.yaml", entA}})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := m.TryIntegrateLoadedModels(live, g)
		if err != nil {
			if !errors.Is(err, errCorrupt) {
				t.Fatalf("err = %v, want wrapped errCorrupt", err)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("decode failure never surfaced")
}

func TestClosedManagerRejectsRequests(t *testing.T) {
	m := New(newFakeDecoder(false), Options{}, zap.NewNop())
	m.Close()
	m.Close()
	if err := m.RequestModels([]Request{{"x.yaml", entA}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := m.RequestUnloadModels([]Request{{"x.yaml", entA}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("unload err = %v, want ErrClosed", err)
	}
	if err := m.Sync(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Sync err = %v, want ErrClosed", err)
	}
}

func TestTryIntegrateIsNonBlocking(t *testing.T) {
	m := newTestManager(t, newFakeDecoder(false), nil)
	ok, err := m.TryIntegrateLoadedModels(map[string]*model.Model{}, &fakeGraphics{})
	if ok || err != nil {
		t.Fatalf("empty queue: %v, %v", ok, err)
	}
}

func TestRequestsNeverWaitOnIntegration(t *testing.T) {
	m := newTestManager(t, newFakeDecoder(false), nil)
	live := map[string]*model.Model{}
	g := &fakeGraphics{}

	if err := m.RequestModels([]Request{{"p.yaml", entA}}); err != nil {
		t.Fatal(err)
	}
	integrateOne(t, m, live, g)

	// Every request for the loaded path posts a refresh; nothing drains them.
	const requests = 2000
	done := make(chan error, 1)
	go func() {
		for i := 1; i <= requests; i++ {
			e := ecs.Entity{ID: ecs.EntityID(i), Generation: ecs.Generation(i + 10)}
			if err := m.RequestModels([]Request{{"p.yaml", e}}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RequestModels: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RequestModels blocked while responses were left unintegrated")
	}
	syncWorker(t, m)

	for {
		ok, err := m.TryIntegrateLoadedModels(live, g)
		if err != nil {
			t.Fatalf("TryIntegrateLoadedModels: %v", err)
		}
		if !ok {
			break
		}
	}
	if got := len(live["p.yaml"].Entities); got != requests+1 {
		t.Errorf("live entities = %d, want %d", got, requests+1)
	}
	if g.uploads != 1 {
		t.Errorf("uploads = %d, want 1", g.uploads)
	}
}
