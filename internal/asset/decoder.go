// Package asset decodes model files into model.Model values. Decoding runs
// on background loader goroutines and must not touch ECS or GPU state.
package asset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gilgamesh/engine/internal/model"
)

var (
	ErrNoMeshes          = errors.New("model has no meshes")
	ErrInvalidModel      = errors.New("invalid model")
	ErrUnsupportedFormat = errors.New("unsupported model format")
)

// Decoder turns an asset path into a decoded Model.
type Decoder interface {
	Decode(path string) (*model.Model, error)
}

// DecodeFunc adapts a function to the Decoder interface.
type DecodeFunc func(path string) (*model.Model, error)

func (f DecodeFunc) Decode(path string) (*model.Model, error) { return f(path) }

// FileDecoder reads model files, choosing the format by extension: .yaml or
// .yml for the engine's YAML format, .obj for Wavefront OBJ. Relative paths
// resolve against Root.
type FileDecoder struct {
	Root string
}

func NewDecoder(root string) *FileDecoder {
	return &FileDecoder{Root: root}
}

func (d *FileDecoder) Decode(path string) (*model.Model, error) {
	full := path
	if d.Root != "" && !filepath.IsAbs(path) {
		full = filepath.Join(d.Root, path)
	}

	var (
		m   *model.Model
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		var raw []byte
		raw, err = os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read model %s: %w", path, err)
		}
		m, err = DecodeYAML(raw)
	case ".obj":
		var f *os.File
		f, err = os.Open(full)
		if err != nil {
			return nil, fmt.Errorf("read model %s: %w", path, err)
		}
		defer f.Close()
		m, err = DecodeOBJ(f)
	default:
		return nil, fmt.Errorf("model %s: %w %q", path, ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}
