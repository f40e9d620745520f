package generic

import "sync"

// Pool is a typed sync.Pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	keep  func(T) bool
}

// PoolOption configures a Pool.
type PoolOption[T any] func(*Pool[T])

// WithReset runs fn on every value handed back with Put.
func WithReset[T any](fn func(T)) PoolOption[T] {
	return func(p *Pool[T]) { p.reset = fn }
}

// WithKeep drops values for which fn returns false instead of pooling
// them, e.g. buffers that grew too large.
func WithKeep[T any](fn func(T) bool) PoolOption[T] {
	return func(p *Pool[T]) { p.keep = fn }
}

func NewPool[T any](generate func() T, opts ...PoolOption[T]) *Pool[T] {
	p := &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func NewHotPool[T any](generate func() T, hotSize int, opts ...PoolOption[T]) *Pool[T] {
	p := NewPool[T](generate, opts...)
	for i := 0; i < hotSize; i++ {
		p.pool.Put(generate())
	}
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.keep != nil && !p.keep(value) {
		return
	}
	if p.reset != nil {
		p.reset(value)
	}
	p.pool.Put(value)
}
