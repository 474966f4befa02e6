package backingstore

import (
	"sync"
	"time"

	"github.com/sdstack/sdbs/scsi"
	"github.com/sdstack/sdbs/volume"
)

// Engine is the sheepdog-backed implementation of the backing-store
// contract: one open volume.Volume per LU number the framework assigns.
// Every exported method here runs on whatever thread the framework calls
// it from — a single worker thread per LU, one command at a time — so the
// only state Engine itself must protect is the LU table each call briefly
// looks up or mutates.
type Engine struct {
	network string
	address string
	timeout time.Duration

	mu  sync.Mutex
	lus map[int]*volume.Volume
}

func NewEngine(network, address string, timeout time.Duration) *Engine {
	return &Engine{
		network: network,
		address: address,
		timeout: timeout,
		lus:     make(map[int]*volume.Volume),
	}
}

// Open opens the VDI named by path, always with an empty tag and
// snapid 0, and reports its size.
func (e *Engine) Open(lu int, path string) (uint64, error) {
	v, err := volume.Open(e.network, e.address, e.timeout, path)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.lus[lu] = v
	e.mu.Unlock()

	return v.Size(), nil
}

func (e *Engine) Close(lu int) error {
	e.mu.Lock()
	v := e.lus[lu]
	delete(e.lus, lu)
	e.mu.Unlock()

	if v == nil {
		return nil
	}
	return v.Close()
}

// Init and Exit have nothing to do at this layer: no state is persisted
// here, and the worker thread whose queue they would register is the
// framework's own, not something this engine spawns.
func (e *Engine) Init(lu int) error { return nil }
func (e *Engine) Exit(lu int) error { return nil }

func (e *Engine) Submit(lu int, cmd *scsi.Command) *scsi.Result {
	e.mu.Lock()
	v := e.lus[lu]
	e.mu.Unlock()

	if v == nil {
		return &scsi.Result{Status: scsi.StatusCheckCondition, SenseKey: scsi.SenseMediumError, ASC: scsi.AscReadError}
	}
	return scsi.Dispatch(v, cmd)
}

// RegisterSheepdog builds an Engine bound to the given cluster endpoint
// and publishes it into r under the name "sheepdog".
func RegisterSheepdog(r *Registry, network, address string, timeout time.Duration) {
	e := NewEngine(network, address, timeout)
	r.Register(Module{
		Name:           "sheepdog",
		PerLUStateSize: 0,
		Open:           e.Open,
		Close:          e.Close,
		Init:           e.Init,
		Exit:           e.Exit,
		Submit:         e.Submit,
	})
}
