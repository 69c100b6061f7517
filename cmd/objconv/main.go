// objconv converts Wavefront OBJ files to the engine's YAML model format.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gilgamesh/engine/internal/asset"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: objconv <input.obj> <output.yaml>")
		os.Exit(1)
	}

	in, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer in.Close()

	m, err := asset.DecodeOBJ(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	if m.Name == "" {
		base := filepath.Base(os.Args[1])
		m.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	raw, err := asset.EncodeYAML(m)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	header := fmt.Sprintf("# %s - converted from %s (%d triangles)\n", m.Name, filepath.Base(os.Args[1]), m.TriangleCount())
	if err := os.WriteFile(os.Args[2], append([]byte(header), raw...), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d meshes, %d materials to %s\n", len(m.Meshes), len(m.Materials), os.Args[2])
}
