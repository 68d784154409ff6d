// Package queue holds the pending operations of a batch. Insertion order is
// execution order.
package queue

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/menta2k/image-editor/pkg/types"
)

// Queue is an ordered list of pending operations. It is safe for concurrent
// use.
type Queue struct {
	mu  sync.Mutex
	ops []types.Operation
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends an operation and returns its id. The params are copied so
// later changes by the caller do not reach the queued operation.
func (q *Queue) Enqueue(kind types.Kind, params types.Params) (string, error) {
	if err := kind.Validate(params); err != nil {
		return "", fmt.Errorf("enqueue rejected: %w", err)
	}

	op := types.Operation{
		ID:     uuid.NewString(),
		Kind:   kind,
		Params: params.Clone(),
	}

	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()

	return op.ID, nil
}

// Remove deletes the operation with the given id, reporting whether it was
// present.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the queue and returns the discarded operations.
func (q *Queue) Clear() []types.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.ops
	q.ops = nil
	return dropped
}

// List returns a copy of the queued operations in execution order.
func (q *Queue) List() []types.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.Operation, len(q.ops))
	for i, op := range q.ops {
		op.Params = op.Params.Clone()
		out[i] = op
	}
	return out
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
