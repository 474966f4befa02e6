// Package backingstore publishes the backing-store descriptor a SCSI
// target framework would bind an LU's open/close/submit calls to, and
// supplies the one concrete implementation this repo ships: a
// sheepdog-backed volume per LU.
//
// Unlike the hash and cache packages' init()-time self-registration, a
// backing-store engine needs its cluster endpoint in hand before it can
// do anything useful, so registration here is an explicit call the
// caller makes once at startup (see RegisterSheepdog) rather than a
// package-level side effect.
package backingstore

import (
	"fmt"
	"sync"

	"github.com/sdstack/sdbs/scsi"
)

// Module is the descriptor a backing-store engine publishes: a name plus
// the five entry points the framework drives an LU's lifecycle through.
// PerLUStateSize documents how much opaque per-LU state the engine keeps
// for a framework that wants to preallocate it; this implementation keeps
// its state in a Go map instead of a framework-owned blob, so it reports
// zero.
type Module struct {
	Name           string
	PerLUStateSize int

	Open   func(lu int, path string) (sizeBytes uint64, err error)
	Close  func(lu int) error
	Init   func(lu int) error
	Exit   func(lu int) error
	Submit func(lu int, cmd *scsi.Command) *scsi.Result
}

// Registry is a name -> Module table, built explicitly by the process
// that knows the engine's configuration rather than assembled from
// package-init side effects.
type Registry struct {
	mu      sync.Mutex
	modules map[string]Module
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name] = m
}

func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[name]
	return m, ok
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}

// ErrModuleNotFound is returned by callers that look a module up by name
// and get nothing back.
func ErrModuleNotFound(name string) error {
	return fmt.Errorf("backingstore: no module registered as %q", name)
}
