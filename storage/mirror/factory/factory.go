// Package factory resolves the configured mirror strategy to a Mirror.
package factory

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/storage/mirror"
	"github.com/solusnoir/solus/storage/mirror/s3"
)

// Constructor builds a mirror from the mirror section of the config.
type Constructor func(*config.Mirror) (mirror.Mirror, error)

var (
	mu           sync.RWMutex
	constructors = map[string]Constructor{
		"noop": func(*config.Mirror) (mirror.Mirror, error) { return mirror.NoopMirror{}, nil },
		"s3":   func(cfg *config.Mirror) (mirror.Mirror, error) { return s3.NewS3Mirror(cfg) },
	}
)

// Register binds a strategy name to its constructor, replacing any previous
// binding.
func Register(strategy string, c Constructor) {
	mu.Lock()
	defer mu.Unlock()
	constructors[strategy] = c
}

// Strategies lists the registered strategy names in order.
func Strategies() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Create builds the mirror named by cfg.Strategy.
func Create(cfg *config.Mirror) (mirror.Mirror, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mirror config is nil")
	}

	mu.RLock()
	c, ok := constructors[cfg.Strategy]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown mirror strategy %q (known: %s)", cfg.Strategy, strings.Join(Strategies(), ", "))
	}

	m, err := c(cfg)
	if err != nil {
		return nil, fmt.Errorf("mirror strategy %q: %w", cfg.Strategy, err)
	}

	return m, nil
}
