package seq

import (
	"context"
	"fmt"
	"sync"
)

// Generator hands out readable sequential IDs. Used in tests, where stable
// IDs beat opaque UUIDs.
type Generator struct {
	mu      sync.Mutex
	prefix  string
	counter int
}

func New(prefix string) *Generator {
	//nolint:exhaustruct
	return &Generator{prefix: prefix}
}

func (g *Generator) GetID(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++

	return fmt.Sprintf("%s-%d", g.prefix, g.counter), nil
}
