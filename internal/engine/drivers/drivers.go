// Package drivers wires the built-in search engine drivers into a registry.
package drivers

import (
	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/engine/bleve"
	"github.com/hyperjump/sokuin/internal/engine/memory"
	"github.com/hyperjump/sokuin/internal/engine/redis"
)

// Default returns a registry holding every built-in driver.
func Default() *engine.Registry {
	r := engine.NewRegistry()
	r.MustRegister(bleve.Driver, bleve.Factory)
	r.MustRegister(redis.Driver, redis.Factory)
	r.MustRegister(memory.Driver, memory.Factory)
	return r
}
