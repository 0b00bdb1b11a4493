package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tmachen/shopfloor/internal/port"
)

// FileSource serves configuration from a flat YAML mapping of key to value,
// e.g.
//
//	BinMin: "5"
//	AssemblyStations: "8"
//	RookieDefectRate: "0.0085"
//
// Values are kept as strings; the engine parses them itself.
type FileSource struct {
	values map[string]string
}

var _ port.ConfigSource = (*FileSource)(nil)

// LoadFile reads a YAML config file into a FileSource.
func LoadFile(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Scalars may appear unquoted in the file; everything is carried as a
	// string toward the engine.
	parsed := make(map[string]any)
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	values := make(map[string]string, len(parsed))
	for k, v := range parsed {
		values[k] = fmt.Sprintf("%v", v)
	}
	return &FileSource{values: values}, nil
}

func (f *FileSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}
