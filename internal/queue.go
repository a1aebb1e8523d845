package internal

type SettledQueue struct {
	callbacks []func()
}

func NewSettledQueue() *SettledQueue {
	return &SettledQueue{
		callbacks: make([]func(), 0),
	}
}

func (q *SettledQueue) Len() int {
	return len(q.callbacks)
}

func (q *SettledQueue) Enqueue(fn func()) {
	q.callbacks = append(q.callbacks, fn)
}

func (q *SettledQueue) Run() {
	callbacks := q.callbacks
	q.callbacks = make([]func(), 0)

	for _, cb := range callbacks {
		cb()
	}
}
