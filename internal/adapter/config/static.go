package config

import (
	"context"

	"github.com/tmachen/shopfloor/internal/port"
)

// StaticSource serves configuration from a fixed map. Used by tests and by
// deployments that run entirely on built-in defaults (nil map is valid).
type StaticSource struct {
	values map[string]string
}

var _ port.ConfigSource = (*StaticSource)(nil)

func NewStaticSource(values map[string]string) *StaticSource {
	return &StaticSource{values: values}
}

func (s *StaticSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}
