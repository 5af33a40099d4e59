package config

import (
	"fmt"
	"path/filepath"

	"github.com/Sumatoshi-tech/hallsweep/pkg/persist"
)

// ResolvedFileName is the copy of the effective configuration written next
// to a run's output.
const ResolvedFileName = "hallsweep.resolved.yaml"

// WriteResolved records the effective configuration (file, environment and
// defaults merged) in dir and returns the written path.
func (c *Config) WriteResolved(dir string) (string, error) {
	path := filepath.Join(dir, ResolvedFileName)

	err := persist.SaveFile(path, persist.NewYAMLCodec(), c)
	if err != nil {
		return "", fmt.Errorf("write resolved config: %w", err)
	}

	return path, nil
}
