// Package artifact stores encoded image results behind opaque handles.
// Handles are content addresses, so storing the same bytes twice yields the
// same handle.
package artifact

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/menta2k/image-editor/pkg/types"
)

// ErrNotFound is returned when a handle does not resolve to an artifact.
var ErrNotFound = errors.New("artifact not found")

// Handle is an opaque reference to a stored artifact.
type Handle string

// String returns a shortened handle for logs.
func (h Handle) String() string {
	if len(h) > 12 {
		return string(h[:12])
	}
	return string(h)
}

// Store resolves handles to artifacts.
type Store interface {
	Put(ctx context.Context, a types.Artifact) (Handle, error)
	Get(ctx context.Context, h Handle) (types.Artifact, error)
	Delete(ctx context.Context, h Handle) error
	Close() error
}

// HandleFor derives the content address of an artifact.
func HandleFor(a types.Artifact) Handle {
	sum, _ := blake2b.New256(nil)
	sum.Write([]byte(a.Format))
	sum.Write([]byte{0})
	sum.Write(a.Data)
	return Handle(hex.EncodeToString(sum.Sum(nil)))
}

// Config selects a store backend.
type Config struct {
	// Backend is "memory" or "badger". Both keep data in process memory only.
	Backend string `json:"backend" yaml:"backend"`
}

// Open creates the store named by cfg.Backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return NewBadgerStore()
	default:
		return nil, fmt.Errorf("unknown artifact store backend %q", cfg.Backend)
	}
}
