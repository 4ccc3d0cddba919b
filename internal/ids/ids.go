// Package ids mints identifiers for evaluations and runs.
package ids

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a new unique identifier on every call.
type Generator interface {
	Next() string
}

// Counter yields prefix-1, prefix-2, ... and is safe for concurrent use.
type Counter struct {
	Prefix string
	n      atomic.Uint64
}

func (c *Counter) Next() string {
	n := c.n.Add(1)
	if c.Prefix == "" {
		return strconv.FormatUint(n, 10)
	}
	return c.Prefix + "-" + strconv.FormatUint(n, 10)
}

// UUID yields random version 4 UUIDs.
type UUID struct{}

func (UUID) Next() string {
	return uuid.NewString()
}
