package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("queue is closed")

// Task is one image download: URL is fetched and stored at Path.
type Task struct {
	ID        string
	URL       string
	SKU       string
	Path      string
	Priority  int
	Retries   int
	CreatedAt time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue hands out tasks by descending priority, first in first out
// among equal priorities. After Close, Pop drains what is left and then
// returns ErrQueueClosed.
type InMemoryQueue struct {
	tasks  []*Task
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	q := &InMemoryQueue{
		tasks: make([]*Task, 0),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.tasks = append(q.tasks, task)
	q.sortByPriority()
	q.cond.Signal()

	return nil
}

// PushAll enqueues tasks in order and stops at the first error.
func (q *InMemoryQueue) PushAll(tasks []*Task) error {
	for _, task := range tasks {
		if err := q.Push(task); err != nil {
			return err
		}
	}
	return nil
}

// Pop blocks until a task is available, the queue is closed and drained, or
// ctx is done.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}

	if len(q.tasks) == 0 {
		return nil, ErrQueueClosed
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]

	return task, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()

	return nil
}

func (q *InMemoryQueue) sortByPriority() {
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
}
