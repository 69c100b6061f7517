package scene

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gilgamesh/engine/internal/component"
	"go.uber.org/zap/zaptest"
)

func TestSpawnBuildsComponents(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	defer e.Close()

	src := `
local cam = spawn{ position = {0, 1, 5}, camera = { fov = 75 } }
local root = spawn{ position = {x = 1, y = 2, z = 3}, rotation = {0, 90, 0} }
spawn{
	parent = root,
	model = "crate.yaml",
	velocity = { linear = {0, 0, -1} },
	light = { kind = "spot", color = {1, 0.5, 0}, attenuation = {1, 0.1, 0.01}, cutoff = 0.8, fade = 4 },
}
assert(cam == 1 and root == 2)
`
	if err := e.RunString(src); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	spawns := e.Spawns()
	if len(spawns) != 3 {
		t.Fatalf("spawns = %d, want 3", len(spawns))
	}

	if spawns[0].Camera == nil || spawns[0].Camera.FOV != 75 {
		t.Errorf("camera = %+v", spawns[0].Camera)
	}
	if p := spawns[1].Transform.Position; p[0] != 1 || p[1] != 2 || p[2] != 3 {
		t.Errorf("root position = %v", p)
	}

	child := spawns[2]
	if child.Parent != 2 {
		t.Errorf("parent = %d, want 2", child.Parent)
	}
	if child.Model == nil || child.Model.Path != "crate.yaml" {
		t.Errorf("model = %+v", child.Model)
	}
	if child.Velocity == nil || child.Velocity.Linear[2] != -1 {
		t.Errorf("velocity = %+v", child.Velocity)
	}
	if l := child.Light; l == nil || l.Kind != component.LightSpot || l.Cutoff != 0.8 || l.Attenuation.Linear != 0.1 {
		t.Errorf("light = %+v", child.Light)
	}
	if child.Camera != nil {
		t.Error("child gained a camera")
	}
}

func TestSpawnRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown parent", `spawn{ parent = 4 }`, "parent 4"},
		{"bad vector", `spawn{ position = {1, "two", 3} }`, "position.y"},
		{"bad light", `spawn{ light = { kind = "area" } }`, "unknown light kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(zaptest.NewLogger(t))
			defer e.Close()
			err := e.RunString(tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.lua")
	src := `
for i = 0, 3 do
	spawn{ model = "crate.yaml", position = { i * 2, 0, 0 } }
end
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(zaptest.NewLogger(t))
	defer e.Close()
	if err := e.Run(path); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(e.Spawns()); n != 4 {
		t.Fatalf("spawns = %d, want 4", n)
	}
	if x := e.Spawns()[3].Transform.Position[0]; x != 6 {
		t.Errorf("last x = %v, want 6", x)
	}

	if err := e.Run(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("Run of a missing file succeeded")
	}
}

func TestDefaultSceneRuns(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	defer e.Close()
	if err := e.Run(filepath.Join("..", "..", "data", "scenes", "default.lua")); err != nil {
		t.Fatalf("Run default scene: %v", err)
	}
	cameras := 0
	for _, s := range e.Spawns() {
		if s.Camera != nil {
			cameras++
		}
	}
	if cameras != 1 {
		t.Errorf("default scene has %d cameras, want 1", cameras)
	}
}

func TestCameraFOVDefault(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	defer e.Close()
	e.DefaultFOV = 60
	if err := e.RunString(`spawn{camera={}} spawn{camera={fov=75}}`); err != nil {
		t.Fatal(err)
	}
	if got := e.Spawns()[0].Camera.FOV; got != 60 {
		t.Errorf("omitted fov = %v, want 60", got)
	}
	if got := e.Spawns()[1].Camera.FOV; got != 75 {
		t.Errorf("explicit fov = %v, want 75", got)
	}
}
