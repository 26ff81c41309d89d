package queue

import "context"

// Queue is a FIFO of events waiting to be processed.
type Queue interface {
	// Enqueue adds an item to the end of the queue, waiting for room if the
	// queue is full.
	Enqueue(ctx context.Context, item interface{}) error
	// Dequeue removes and returns the item at the front of the queue,
	// waiting for one if the queue is empty.
	Dequeue(ctx context.Context) (interface{}, error)
	// Size returns the number of items waiting in the queue.
	Size() int
}
