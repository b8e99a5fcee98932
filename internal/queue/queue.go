// Package queue provides the bounded candidate heap used by KNN launches.
package queue

// Candidate is one neighbor candidate of a query.
type Candidate struct {
	ID    uint32  // ID is the point index.
	Dist2 float32 // Dist2 is the squared distance to the query.
}

// worse reports whether a ranks behind b. Ties on distance are broken by id
// so the retained set does not depend on traversal order.
func worse(a, b Candidate) bool {
	if a.Dist2 != b.Dist2 {
		return a.Dist2 > b.Dist2
	}
	return a.ID > b.ID
}

// KNN keeps the k best candidates in a value-based max heap with the worst
// retained candidate on top.
type KNN struct {
	k     int
	items []Candidate
}

// NewKNN creates a heap retaining at most k candidates.
func NewKNN(k int) *KNN {
	return &KNN{
		k:     k,
		items: make([]Candidate, 0, k),
	}
}

// Len returns the number of retained candidates.
func (q *KNN) Len() int { return len(q.items) }

// Full reports whether k candidates are retained.
func (q *KNN) Full() bool { return len(q.items) >= q.k }

// Worst returns the top of the heap.
func (q *KNN) Worst() (Candidate, bool) {
	if len(q.items) == 0 {
		return Candidate{}, false
	}
	return q.items[0], true
}

// Offer inserts c if it improves the retained set and reports whether it was
// kept.
func (q *KNN) Offer(c Candidate) bool {
	if q.k <= 0 {
		return false
	}
	if len(q.items) < q.k {
		q.items = append(q.items, c)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if !worse(q.items[0], c) {
		return false
	}
	q.items[0] = c
	q.siftDown(0)
	return true
}

// Drain writes the retained ids best first into dst, empties the heap and
// returns the number written.
func (q *KNN) Drain(dst []uint32) int {
	n := len(q.items)
	for i := n - 1; i >= 0; i-- {
		top := q.pop()
		if i < len(dst) {
			dst[i] = top.ID
		}
	}
	return min(n, len(dst))
}

// Reset clears the heap for reuse.
func (q *KNN) Reset() {
	q.items = q.items[:0]
}

func (q *KNN) pop() Candidate {
	n := len(q.items)
	root := q.items[0]
	last := q.items[n-1]
	q.items = q.items[:n-1]
	if n-1 > 0 {
		q.items[0] = last
		q.siftDown(0)
	}
	return root
}

func (q *KNN) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !worse(q.items[i], q.items[p]) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *KNN) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && worse(q.items[r], q.items[l]) {
			best = r
		}
		if !worse(q.items[best], q.items[i]) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}
