package control

import "container/heap"

// queueItem is one enqueued command awaiting processing, ordered by
// (priority, insertion sequence): lower priority value processes first,
// ties broken by arrival order.
type queueItem struct {
	cmd      Command
	priority int
	seq      int64
}

// priorityQueue is a container/heap.Interface min-heap ordered by
// (priority, sequence): lower priority first, insertion order breaking
// ties.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*queueItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityQueue)(nil)
