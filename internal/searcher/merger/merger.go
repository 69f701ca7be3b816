// Package merger selects the best scored documents of a result set.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
)

// Seq returns the insertion sequence of a document; lower sequences win ties.
type Seq func(docID string) uint64

// TopK returns the k best documents, ordered by descending score with ties
// broken by sequence. A k of zero or less, or at least len(docs), orders the
// whole set.
func TopK(docs []ranker.ScoredDoc, k int, seq Seq) []ranker.ScoredDoc {
	if k <= 0 || k > len(docs) {
		k = len(docs)
	}
	h := &scoredDocHeap{seq: seq}
	heap.Init(h)
	for _, doc := range docs {
		doc.Score = ranker.Round(doc.Score)
		heap.Push(h, doc)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap: the root is the worst document kept so far.
type scoredDocHeap struct {
	docs []ranker.ScoredDoc
	seq  Seq
}

func (h scoredDocHeap) Len() int { return len(h.docs) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h.docs[i].Score != h.docs[j].Score {
		return h.docs[i].Score < h.docs[j].Score
	}
	return h.seq(h.docs[i].DocID) > h.seq(h.docs[j].DocID)
}

func (h scoredDocHeap) Swap(i, j int) { h.docs[i], h.docs[j] = h.docs[j], h.docs[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	h.docs = append(h.docs, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := h.docs
	n := len(old)
	item := old[n-1]
	h.docs = old[:n-1]
	return item
}
