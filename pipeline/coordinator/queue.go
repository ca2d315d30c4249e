package coordinator

import (
	"container/heap"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// Priority Queue (heap)
// =============================================================================

// queueItem represents one waiting stimulus in the priority queue.
type queueItem struct {
	stimulus *envelope.Stimulus
	priority int    // Lower = higher priority
	seq      uint64 // For FIFO within same priority
	index    int    // Heap index
}

// stimulusQueue implements heap.Interface.
type stimulusQueue []*queueItem

func (q stimulusQueue) Len() int { return len(q) }

func (q stimulusQueue) Less(i, j int) bool {
	// Lower priority value = higher priority
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	// FIFO for same priority
	return q[i].seq < q[j].seq
}

func (q stimulusQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *stimulusQueue) Push(x any) {
	n := len(*q)
	item := x.(*queueItem)
	item.index = n
	*q = append(*q, item)
}

func (q *stimulusQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*q = old[0 : n-1]
	return item
}

// push enqueues a stimulus under the given sequence number.
func (q *stimulusQueue) push(stim *envelope.Stimulus, seq uint64) {
	heap.Push(q, &queueItem{
		stimulus: stim,
		priority: stim.Priority.QueueValue(),
		seq:      seq,
	})
}

// pop removes and returns the highest-priority, oldest stimulus.
// Returns nil when the queue is empty.
func (q *stimulusQueue) pop() *envelope.Stimulus {
	if q.Len() == 0 {
		return nil
	}
	item := heap.Pop(q).(*queueItem)
	return item.stimulus
}
