// Package admission bounds the number of connection handlers that may run
// at the same time.
//
// A Controller is a counting semaphore. The accept loop calls Acquire
// before it spawns a handler, and the handler releases its Slot on every
// exit path:
//
//	slot, err := ctl.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	go func() {
//	    defer slot.Release()
//	    handle(conn)
//	}()
package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the number of concurrent handlers admitted by default.
const DefaultCapacity = 8

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("admission: capacity must be at least 1")

// Observer receives admission events, typically to export metrics.
type Observer interface {
	// OnAcquire is called after a slot is granted with the time spent waiting.
	OnAcquire(wait time.Duration)

	// OnRelease is called after a slot is returned.
	OnRelease()
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver attaches an Observer to the controller.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// Controller is a counting semaphore with observable occupancy.
// It is safe for concurrent use.
type Controller struct {
	sem      *semaphore.Weighted
	capacity int64
	observer Observer

	inUse    atomic.Int64
	peak     atomic.Int64
	acquired atomic.Uint64
	released atomic.Uint64
}

// New creates a Controller admitting at most capacity holders.
func New(capacity int, opts ...Option) (*Controller, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	c := &Controller{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Acquire blocks until a slot is free or ctx is done. On success the
// caller owns the returned Slot and must release it exactly once.
func (c *Controller) Acquire(ctx context.Context) (*Slot, error) {
	start := time.Now()
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	c.granted(time.Since(start))
	return &Slot{c: c}, nil
}

// TryAcquire takes a slot without blocking. It returns nil when the
// controller is at capacity.
func (c *Controller) TryAcquire() *Slot {
	if !c.sem.TryAcquire(1) {
		return nil
	}
	c.granted(0)
	return &Slot{c: c}
}

func (c *Controller) granted(wait time.Duration) {
	n := c.inUse.Add(1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	c.acquired.Add(1)
	if c.observer != nil {
		c.observer.OnAcquire(wait)
	}
}

func (c *Controller) release() {
	// Decrement before handing the permit back so InUse never exceeds
	// capacity from an observer's point of view.
	c.inUse.Add(-1)
	c.released.Add(1)
	c.sem.Release(1)
	if c.observer != nil {
		c.observer.OnRelease()
	}
}

// Capacity returns the configured number of slots.
func (c *Controller) Capacity() int {
	return int(c.capacity)
}

// InUse returns the number of slots currently held.
func (c *Controller) InUse() int {
	return int(c.inUse.Load())
}

// Available returns the number of free slots.
func (c *Controller) Available() int {
	return int(c.capacity - c.inUse.Load())
}

// Stats is a point-in-time view of a Controller.
type Stats struct {
	Capacity int    `json:"capacity"`
	InUse    int    `json:"in_use"`
	Peak     int    `json:"peak"`
	Acquired uint64 `json:"acquired"`
	Released uint64 `json:"released"`
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Capacity: int(c.capacity),
		InUse:    int(c.inUse.Load()),
		Peak:     int(c.peak.Load()),
		Acquired: c.acquired.Load(),
		Released: c.released.Load(),
	}
}

// Slot is one unit of admitted capacity.
type Slot struct {
	c        *Controller
	released atomic.Bool
}

// Release returns the slot to its controller. It never blocks. Releasing
// the same slot twice is a programming error and panics.
func (s *Slot) Release() {
	if !s.released.CompareAndSwap(false, true) {
		panic("admission: slot released twice")
	}
	s.c.release()
}
