// Package scene runs Lua scene scripts that describe the initial world.
package scene

import (
	"fmt"

	"github.com/gilgamesh/engine/internal/component"
	"github.com/go-gl/mathgl/mgl32"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Spawn is one entity requested by a script. Nil components are absent.
type Spawn struct {
	Transform *component.Transform
	Camera    *component.Camera
	Light     *component.Light
	Model     *component.Model
	Velocity  *component.Velocity
	// Parent is the 1-based handle spawn returned for the parent, 0 for none.
	Parent int
}

// Engine wraps a gopher-lua VM exposing the scene API. Single-goroutine
// access only.
type Engine struct {
	// DefaultFOV is used for cameras that omit fov, in degrees.
	DefaultFOV float32

	vm     *lua.LState
	log    *zap.Logger
	spawns []Spawn
}

func NewEngine(log *zap.Logger) *Engine {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e := &Engine{DefaultFOV: 90, vm: vm, log: log.Named("scene")}
	vm.SetGlobal("spawn", vm.NewFunction(e.luaSpawn))
	return e
}

func (e *Engine) Close() { e.vm.Close() }

// Run executes a scene script file.
func (e *Engine) Run(path string) error {
	before := len(e.spawns)
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("run scene %s: %w", path, err)
	}
	e.log.Info("scene loaded",
		zap.String("file", path),
		zap.Int("entities", len(e.spawns)-before))
	return nil
}

// RunString executes scene source held in memory.
func (e *Engine) RunString(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("run scene: %w", err)
	}
	return nil
}

// Spawns returns every entity requested so far, in spawn order.
func (e *Engine) Spawns() []Spawn { return e.spawns }

// luaSpawn implements spawn{...}; it returns the new entity's handle.
func (e *Engine) luaSpawn(L *lua.LState) int {
	t := L.CheckTable(1)
	var s Spawn

	pos := vec3Field(L, t, "position", mgl32.Vec3{})
	rot := vec3Field(L, t, "rotation", mgl32.Vec3{})
	tr := component.NewTransform(degToRad(rot), pos)
	tr.Scale = vec3Field(L, t, "scale", mgl32.Vec3{1, 1, 1})
	s.Transform = &tr

	if ct, ok := t.RawGetString("camera").(*lua.LTable); ok {
		s.Camera = &component.Camera{FOV: numField(ct, "fov", e.DefaultFOV)}
	}
	if lt, ok := t.RawGetString("light").(*lua.LTable); ok {
		s.Light = lightFrom(L, lt)
	}
	if m, ok := t.RawGetString("model").(lua.LString); ok {
		s.Model = &component.Model{
			Path:          string(m),
			ShaderProgram: int(numField(t, "shader", 0)),
		}
	}
	if vt, ok := t.RawGetString("velocity").(*lua.LTable); ok {
		s.Velocity = &component.Velocity{
			Linear:  vec3Field(L, vt, "linear", mgl32.Vec3{}),
			Angular: degToRad(vec3Field(L, vt, "angular", mgl32.Vec3{})),
		}
	}
	if p, ok := t.RawGetString("parent").(lua.LNumber); ok {
		parent := int(p)
		if parent < 1 || parent > len(e.spawns) {
			L.ArgError(1, fmt.Sprintf("parent %d is not a spawned entity", parent))
		}
		s.Parent = parent
	}

	e.spawns = append(e.spawns, s)
	L.Push(lua.LNumber(len(e.spawns)))
	return 1
}

func lightFrom(L *lua.LState, t *lua.LTable) *component.Light {
	l := &component.Light{
		Color:   vec3Field(L, t, "color", mgl32.Vec3{1, 1, 1}),
		Ambient: vec3Field(L, t, "ambient", mgl32.Vec3{}),
	}
	att := vec3Field(L, t, "attenuation", mgl32.Vec3{1, 0, 0})
	l.Attenuation = component.Attenuation{Constant: att[0], Linear: att[1], Quadratic: att[2]}
	switch kind := lua.LVAsString(t.RawGetString("kind")); kind {
	case "", "point":
		l.Kind = component.LightPoint
	case "spot":
		l.Kind = component.LightSpot
		l.Cutoff = numField(t, "cutoff", 0)
		l.FadeExponent = numField(t, "fade", 1)
	default:
		L.ArgError(1, fmt.Sprintf("unknown light kind %q", kind))
	}
	return l
}

func numField(t *lua.LTable, key string, def float32) float32 {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return float32(n)
	}
	return def
}

// vec3Field reads {x, y, z} or {x=, y=, z=} from t[key].
func vec3Field(L *lua.LState, t *lua.LTable, key string, def mgl32.Vec3) mgl32.Vec3 {
	v := t.RawGetString(key)
	if v == lua.LNil {
		return def
	}
	vt, ok := v.(*lua.LTable)
	if !ok {
		L.ArgError(1, fmt.Sprintf("%s must be a table", key))
		return def
	}
	var out mgl32.Vec3
	for i, name := range []string{"x", "y", "z"} {
		c := vt.RawGetInt(i + 1)
		if c == lua.LNil {
			c = vt.RawGetString(name)
		}
		n, ok := c.(lua.LNumber)
		if !ok {
			L.ArgError(1, fmt.Sprintf("%s.%s must be a number", key, name))
			return def
		}
		out[i] = float32(n)
	}
	return out
}

func degToRad(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{mgl32.DegToRad(v[0]), mgl32.DegToRad(v[1]), mgl32.DegToRad(v[2])}
}
