// Package resource loads model assets off the simulation and render
// goroutines, deduplicating concurrent requests for the same path.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gilgamesh/engine/internal/asset"
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("resource manager closed")

// LoadingState is a registered path's position in Unregistered -> Loading ->
// Loaded. Unregistered paths have no registry entry at all.
type LoadingState int

const (
	Loading LoadingState = iota + 1
	Loaded
)

func (s LoadingState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	}
	return "unregistered"
}

// Request pairs a model path with the entity that uses it.
type Request struct {
	Path   string
	Entity ecs.Entity
}

// GraphicsContext is the part of the graphics layer integration needs.
type GraphicsContext interface {
	Upload(m *model.Model) error
	Release(m *model.Model)
}

type entry struct {
	state    LoadingState
	entities map[ecs.Entity]struct{}
}

type command struct {
	load    []Request
	unload  []Request
	barrier chan struct{}
}

type responseKind int

const (
	responseLoaded  responseKind = iota // decoded model, or err
	responseRefresh                     // membership changed for a loaded path
	responseUnload                      // entities left a loaded path
)

type response struct {
	kind     responseKind
	path     string
	model    *model.Model
	entities []ecs.Entity
	err      error
}

type Options struct {
	// Workers bounds concurrent decodes.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// Manager owns the path registry and a worker goroutine that turns request
// batches into background loads. Completed loads are integrated by whichever
// goroutine calls TryIntegrateLoadedModels (the render loop).
//
// The registry is the only state shared between goroutines; mu is held only
// for registry bookkeeping, never across a decode or a GPU call. Requests and
// responses travel through unbounded queues, so neither the simulation nor
// the render goroutine ever waits on the other.
type Manager struct {
	decoder asset.Decoder
	log     *zap.Logger

	mu       sync.RWMutex
	registry map[string]*entry

	requests  *event.Queue[command]
	wake      chan struct{}
	responses *event.Queue[response]
	sem       *semaphore.Weighted

	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
	inflight sync.WaitGroup
	loads    atomic.Int64
}

// New starts the worker goroutine. Call Close to stop it.
func New(decoder asset.Decoder, opts Options, log *zap.Logger) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		decoder:   decoder,
		log:       log.Named("resource"),
		registry:  make(map[string]*entry, 64),
		requests:  event.NewQueue[command](),
		wake:      make(chan struct{}, 1),
		responses: event.NewQueue[response](),
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
	go m.loop()
	return m
}

// RequestModels registers each entity as a user of its path. The first
// request for an unregistered path spawns exactly one load.
func (m *Manager) RequestModels(batch []Request) error {
	return m.send(command{load: batch})
}

// RequestUnloadModels removes each entity from its path's user set, erasing
// the registry entry when the set empties. In-flight loads are not
// cancelled.
func (m *Manager) RequestUnloadModels(batch []Request) error {
	return m.send(command{unload: batch})
}

// Sync blocks until every request sent before it has been processed by the
// worker. Loads it spawned may still be running.
func (m *Manager) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := m.send(command{barrier: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrClosed
	}
}

// Loads counts background loads spawned so far.
func (m *Manager) Loads() int64 { return m.loads.Load() }

// State reports a path's registry state; false means unregistered.
func (m *Manager) State(path string) (LoadingState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.registry[path]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Users returns a copy of the entities registered for path.
func (m *Manager) Users(path string) []ecs.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.registry[path]
	if !ok {
		return nil
	}
	return setToSlice(e.entities)
}

// Close stops the worker and waits for loader goroutines to exit. Loads that
// have not posted their result by then are discarded. Close is idempotent.
func (m *Manager) Close() {
	m.cancel()
	<-m.stopped
	m.inflight.Wait()
}

func (m *Manager) send(cmd command) error {
	select {
	case <-m.ctx.Done():
		return ErrClosed
	default:
	}
	m.requests.Push(cmd)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *Manager) loop() {
	defer close(m.stopped)
	for {
		select {
		case <-m.wake:
			for _, cmd := range m.requests.Consume() {
				switch {
				case cmd.barrier != nil:
					close(cmd.barrier)
				case cmd.load != nil:
					m.handleLoad(cmd.load)
				case cmd.unload != nil:
					m.handleUnload(cmd.unload)
				}
			}
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) handleLoad(batch []Request) {
	var spawn, refresh []string
	refreshed := make(map[string]bool)

	m.mu.Lock()
	for _, r := range batch {
		if e, ok := m.registry[r.Path]; ok {
			// A loading entry picks up the new user at integration time,
			// since the set is read from the registry, not captured here.
			e.entities[r.Entity] = struct{}{}
			if e.state == Loaded && !refreshed[r.Path] {
				refreshed[r.Path] = true
				refresh = append(refresh, r.Path)
			}
			continue
		}
		m.registry[r.Path] = &entry{
			state:    Loading,
			entities: map[ecs.Entity]struct{}{r.Entity: {}},
		}
		spawn = append(spawn, r.Path)
	}
	m.mu.Unlock()

	for _, path := range refresh {
		m.post(response{kind: responseRefresh, path: path})
	}
	for _, path := range spawn {
		m.spawnLoader(path)
	}
}

func (m *Manager) handleUnload(batch []Request) {
	var order []string
	removed := make(map[string][]ecs.Entity)

	m.mu.Lock()
	for _, r := range batch {
		e, ok := m.registry[r.Path]
		if !ok {
			continue
		}
		if _, member := e.entities[r.Entity]; !member {
			continue
		}
		delete(e.entities, r.Entity)
		if e.state == Loaded {
			if _, seen := removed[r.Path]; !seen {
				order = append(order, r.Path)
			}
			removed[r.Path] = append(removed[r.Path], r.Entity)
		}
		if len(e.entities) == 0 {
			delete(m.registry, r.Path)
		}
	}
	m.mu.Unlock()

	for _, path := range order {
		m.post(response{kind: responseUnload, path: path, entities: removed[path]})
	}
}

func (m *Manager) spawnLoader(path string) {
	m.loads.Add(1)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if err := m.sem.Acquire(m.ctx, 1); err != nil {
			return
		}
		start := time.Now()
		mdl, err := m.decoder.Decode(path)
		m.sem.Release(1)
		if err != nil {
			m.log.Error("model decode failed", zap.String("path", path), zap.Error(err))
			m.post(response{kind: responseLoaded, path: path, err: err})
			return
		}
		m.log.Info("model decoded",
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("meshes", len(mdl.Meshes)),
			zap.Int("triangles", mdl.TriangleCount()),
		)
		m.post(response{kind: responseLoaded, path: path, model: mdl})
	}()
}

func (m *Manager) post(r response) {
	if m.ctx.Err() != nil {
		return
	}
	m.responses.Push(r)
}

// TryIntegrateLoadedModels pops at most one completed response without
// blocking and folds it into live. It reports whether live changed, so the
// caller knows to re-derive per-instance data.
//
// A decode failure is returned as an error: there is no recovery for a
// missing or corrupt asset. A response for a path that was fully unloaded
// while its load was in flight is dropped.
func (m *Manager) TryIntegrateLoadedModels(live map[string]*model.Model, g GraphicsContext) (bool, error) {
	r, ok := m.responses.Pop()
	if !ok {
		return false, nil
	}

	switch r.kind {
	case responseUnload:
		return m.integrateUnload(live, g, r), nil
	case responseLoaded:
		if r.err != nil {
			return false, fmt.Errorf("load model %s: %w", r.path, r.err)
		}
	}

	users, ok := m.snapshotUsers(r.path)
	if !ok {
		m.log.Warn("dropping load result for unregistered path", zap.String("path", r.path))
		return false, nil
	}

	if existing, ok := live[r.path]; ok {
		// Duplicate completion or refresh: merge, never re-upload.
		existing.AddEntities(users...)
		existing.EntitiesDirty = true
		m.markLoaded(r.path)
		return true, nil
	}

	if r.model == nil || r.model.Empty() {
		return false, fmt.Errorf("integrate %s: registry reports it loaded but it is missing from the live model table", r.path)
	}

	if err := g.Upload(r.model); err != nil {
		return false, fmt.Errorf("upload model %s: %w", r.path, err)
	}

	// Users may have changed during the upload; re-read under the lock
	// while flipping the state.
	m.mu.Lock()
	e, ok := m.registry[r.path]
	if ok {
		e.state = Loaded
		users = setToSlice(e.entities)
	}
	m.mu.Unlock()
	if !ok {
		m.log.Warn("path unloaded during upload, releasing", zap.String("path", r.path))
		g.Release(r.model)
		return false, nil
	}

	r.model.AddEntities(users...)
	r.model.EntitiesDirty = true
	live[r.path] = r.model
	m.log.Debug("model integrated", zap.String("path", r.path), zap.Int("entities", len(users)))
	return true, nil
}

func (m *Manager) integrateUnload(live map[string]*model.Model, g GraphicsContext, r response) bool {
	lm, ok := live[r.path]
	if !ok {
		return false
	}
	lm.RemoveEntities(r.entities...)
	if len(lm.Entities) == 0 {
		g.Release(lm)
		delete(live, r.path)
		m.log.Debug("model released", zap.String("path", r.path))
	}
	return true
}

func (m *Manager) snapshotUsers(path string) ([]ecs.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.registry[path]
	if !ok {
		return nil, false
	}
	return setToSlice(e.entities), true
}

func (m *Manager) markLoaded(path string) {
	m.mu.Lock()
	if e, ok := m.registry[path]; ok {
		e.state = Loaded
	}
	m.mu.Unlock()
}

func setToSlice(set map[ecs.Entity]struct{}) []ecs.Entity {
	out := make([]ecs.Entity, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	return out
}
