package engine

import (
	"container/heap"

	"lookup_engine/internal/model"
)

type retryItem struct {
	model.RetryEntry
	seq uint64
}

type retryHeap []retryItem

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool {
	if h[i].NextEligibleMs != h[j].NextEligibleMs {
		return h[i].NextEligibleMs < h[j].NextEligibleMs
	}
	// 同一时刻按入队顺序，保证 FIFO
	return h[i].seq < h[j].seq
}

func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *retryHeap) Push(x any) { *h = append(*h, x.(retryItem)) }

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// retryQueue 按 nextEligibleTime 排序的重试队列，只由调度循环读写。
type retryQueue struct {
	h   retryHeap
	seq uint64
}

func newRetryQueue() *retryQueue {
	return &retryQueue{}
}

func (q *retryQueue) Len() int { return q.h.Len() }

func (q *retryQueue) Push(e model.RetryEntry) {
	q.seq++
	heap.Push(&q.h, retryItem{RetryEntry: e, seq: q.seq})
}

// PopEligible 取出最早到期且已到期的条目。
func (q *retryQueue) PopEligible(nowMs int64) (model.RetryEntry, bool) {
	if q.h.Len() == 0 || q.h[0].NextEligibleMs > nowMs {
		return model.RetryEntry{}, false
	}
	it := heap.Pop(&q.h).(retryItem)
	return it.RetryEntry, true
}

// NextEligibleMs 返回队首到期时刻，空队列返回 0。
func (q *retryQueue) NextEligibleMs() int64 {
	if q.h.Len() == 0 {
		return 0
	}
	return q.h[0].NextEligibleMs
}

// Drain 清空队列并返回所有条目（取消时用于统计未完成项）。
func (q *retryQueue) Drain() []model.RetryEntry {
	out := make([]model.RetryEntry, 0, q.h.Len())
	for q.h.Len() > 0 {
		it := heap.Pop(&q.h).(retryItem)
		out = append(out, it.RetryEntry)
	}
	return out
}
