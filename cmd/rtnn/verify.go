package main

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/hupe1980/rtnn"
	"github.com/hupe1980/rtnn/geom"
)

// verifyReport summarizes a brute-force check of sampled rows.
type verifyReport struct {
	Sampled    int      `json:"sampled"`
	Mismatches int      `json:"mismatches"`
	Examples   []string `json:"examples,omitempty"`
}

type rowRef struct {
	batch, row int
}

// verify compares n sampled rows against a linear scan over res.Points.
// Range rows must hold min(limit, hits) distinct in-radius ids; KNN rows must
// match the distances of the true nearest neighbors.
func verify(res *rtnn.Result, mode rtnn.SearchMode, n int, seed uint64) verifyReport {
	var refs []rowRef
	for bi := range res.Batches {
		for row := range res.Batches[bi].Len() {
			refs = append(refs, rowRef{bi, row})
		}
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(refs), func(i, j int) { refs[i], refs[j] = refs[j], refs[i] })
	refs = refs[:min(n, len(refs))]

	rep := verifyReport{Sampled: len(refs)}
	for _, ref := range refs {
		b := &res.Batches[ref.batch]
		if msg := checkRow(res.Points, b, ref.row, mode); msg != "" {
			rep.Mismatches++
			if len(rep.Examples) < 5 {
				rep.Examples = append(rep.Examples, msg)
			}
		}
	}
	return rep
}

func checkRow(points []geom.Vec3, b *rtnn.BatchResult, row int, mode rtnn.SearchMode) string {
	q := b.Queries[row]
	r2 := b.Radius * b.Radius

	var truth []float32
	for _, p := range points {
		if d := q.Dist2(p); d < r2 {
			truth = append(truth, d)
		}
	}
	slices.Sort(truth)

	found := b.Found(row)
	want := min(b.Limit, len(truth))
	if len(found) != want {
		return fmt.Sprintf("batch %d row %d: found %d neighbors, want %d", b.ID, row, len(found), want)
	}

	seen := make(map[uint32]bool, len(found))
	got := make([]float32, 0, len(found))
	for _, id := range found {
		if int(id) >= len(points) || seen[id] {
			return fmt.Sprintf("batch %d row %d: invalid or duplicate id %d", b.ID, row, id)
		}
		seen[id] = true
		d := q.Dist2(points[id])
		if d >= r2 {
			return fmt.Sprintf("batch %d row %d: id %d outside radius", b.ID, row, id)
		}
		got = append(got, d)
	}

	if mode == rtnn.KNNSearch {
		slices.Sort(got)
		for i := range got {
			if got[i] != truth[i] {
				return fmt.Sprintf("batch %d row %d: neighbor %d at dist² %g, want %g", b.ID, row, i, got[i], truth[i])
			}
		}
	}
	return ""
}
