package websocket

// Semaphore caps concurrent status stream subscribers. Acquire never blocks.
type Semaphore struct {
	connections chan struct{}
}

type Option func(*semaphoreOptions)

type semaphoreOptions struct {
	maxConnections int
}

func WithMaxConnections(n int) Option {
	return func(o *semaphoreOptions) {
		o.maxConnections = n
	}
}

func NewSemaphore(opts ...Option) *Semaphore {
	o := &semaphoreOptions{maxConnections: 100}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxConnections <= 0 {
		o.maxConnections = 1
	}
	return &Semaphore{
		connections: make(chan struct{}, o.maxConnections),
	}
}

func (s *Semaphore) Acquire() bool {
	select {
	case s.connections <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Semaphore) Release() {
	select {
	case <-s.connections:
	default:
	}
}

func (s *Semaphore) GetCurrentConnections() int {
	return len(s.connections)
}
