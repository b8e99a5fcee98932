package main

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/hupe1980/rtnn"
	"gonum.org/v1/gonum/stat"
)

type report struct {
	RunID           string         `json:"run_id"`
	Config          configReport   `json:"config"`
	Points          int            `json:"points"`
	Queries         int            `json:"queries"`
	ActiveQueries   int            `json:"active_queries"`
	ActiveCells     int            `json:"active_cells,omitempty"`
	Histogram       map[int32]int  `json:"class_histogram,omitempty"`
	Batches         []batchReport  `json:"batches"`
	Phases          []phaseReport  `json:"phases"`
	Neighbors       neighborReport `json:"neighbors"`
	DurationSeconds float64        `json:"duration_seconds"`
	Verify          *verifyReport  `json:"verify,omitempty"`
}

type configReport struct {
	Radius        float32 `json:"radius"`
	K             int     `json:"k"`
	Mode          string  `json:"mode"`
	SameSet       bool    `json:"samepq"`
	Partition     bool    `json:"partition"`
	Interleave    bool    `json:"interleave"`
	PointSort     string  `json:"point_sort"`
	QuerySort     string  `json:"query_sort"`
	CellRatio     float32 `json:"cell_ratio"`
	Reorder       string  `json:"gas_sort"`
	BuildRatio    float32 `json:"gsr_ratio"`
	Gather        bool    `json:"gather"`
	ReorderPoints bool    `json:"reorder_points"`
	BatchCount    int     `json:"batches"`
}

type batchReport struct {
	ID      int     `json:"id"`
	Queries int     `json:"queries"`
	Radius  float32 `json:"radius"`
	Limit   int     `json:"limit"`
}

type phaseReport struct {
	Phase        rtnn.Phase `json:"phase"`
	Count        int        `json:"count"`
	TotalSeconds float64    `json:"total_seconds"`
	MeanSeconds  float64    `json:"mean_seconds"`
	StdDev       float64    `json:"stddev_seconds"`
	MaxSeconds   float64    `json:"max_seconds"`
}

// neighborReport describes the distribution of found neighbors per row.
type neighborReport struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	Max    float64 `json:"max"`
	Empty  int     `json:"empty_rows"`
}

func newReport(cfg rtnn.Config, res *rtnn.Result, queries int) report {
	rep := report{
		RunID: res.RunID.String(),
		Config: configReport{
			Radius:        cfg.Radius,
			K:             cfg.K,
			Mode:          cfg.Mode.String(),
			SameSet:       cfg.SameSet,
			Partition:     cfg.Partition,
			Interleave:    cfg.Interleave,
			PointSort:     cfg.PointSort.String(),
			QuerySort:     cfg.QuerySort.String(),
			CellRatio:     cfg.CellRatio,
			Reorder:       cfg.Reorder.String(),
			BuildRatio:    cfg.BuildRatio,
			Gather:        cfg.Gather,
			ReorderPoints: cfg.ReorderPoints,
			BatchCount:    cfg.BatchCount,
		},
		Points:          len(res.Points),
		Queries:         queries,
		ActiveQueries:   res.ActiveQueries,
		ActiveCells:     res.ActiveCells,
		Histogram:       res.Histogram,
		Phases:          phaseStats(res.Timings),
		DurationSeconds: res.Duration.Seconds(),
	}
	for _, b := range res.Batches {
		rep.Batches = append(rep.Batches, batchReport{ID: b.ID, Queries: b.Len(), Radius: b.Radius, Limit: b.Limit})
	}
	rep.Neighbors = neighborStats(res)
	return rep
}

// phaseStats aggregates timings per phase in order of first appearance.
func phaseStats(timings []rtnn.PhaseTiming) []phaseReport {
	var order []rtnn.Phase
	samples := make(map[rtnn.Phase][]float64)
	for _, t := range timings {
		if _, ok := samples[t.Phase]; !ok {
			order = append(order, t.Phase)
		}
		samples[t.Phase] = append(samples[t.Phase], t.Duration.Seconds())
	}

	out := make([]phaseReport, 0, len(order))
	for _, p := range order {
		x := samples[p]
		mean, std := stat.MeanStdDev(x, nil)
		if len(x) < 2 {
			std = 0
		}
		var total float64
		for _, v := range x {
			total += v
		}
		out = append(out, phaseReport{
			Phase:        p,
			Count:        len(x),
			TotalSeconds: total,
			MeanSeconds:  mean,
			StdDev:       std,
			MaxSeconds:   slices.Max(x),
		})
	}
	return out
}

func neighborStats(res *rtnn.Result) neighborReport {
	var counts []float64
	var rep neighborReport
	for bi := range res.Batches {
		b := &res.Batches[bi]
		for row := range b.Len() {
			n := len(b.Found(row))
			if n == 0 {
				rep.Empty++
			}
			counts = append(counts, float64(n))
		}
	}
	if len(counts) == 0 {
		return rep
	}

	slices.Sort(counts)
	rep.Mean, rep.StdDev = stat.MeanStdDev(counts, nil)
	if len(counts) < 2 {
		rep.StdDev = 0
	}
	rep.P50 = stat.Quantile(0.5, stat.Empirical, counts, nil)
	rep.P90 = stat.Quantile(0.9, stat.Empirical, counts, nil)
	rep.P99 = stat.Quantile(0.99, stat.Empirical, counts, nil)
	rep.Max = counts[len(counts)-1]
	return rep
}

func writeJSON(w io.Writer, v any) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBanner(w io.Writer, cfg rtnn.Config, points, queries int) {
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "points: %d  queries: %d  samepq: %t\n", points, queries, cfg.SameSet)
	fmt.Fprintf(w, "radius: %g  k: %d  mode: %s\n", cfg.Radius, cfg.K, cfg.Mode)
	fmt.Fprintf(w, "point sort: %s  query sort: %s  cell ratio: %g\n", cfg.PointSort, cfg.QuerySort, cfg.CellRatio)
	fmt.Fprintf(w, "partition: %t  batches: %d  interleave: %t\n", cfg.Partition, cfg.BatchCount, cfg.Interleave)
	fmt.Fprintf(w, "gas sort: %s (axis %s)  gsr ratio: %g  gather: %t  reorder points: %t\n",
		cfg.Reorder, cfg.ReorderAxis, cfg.BuildRatio, cfg.Gather, cfg.ReorderPoints)
	fmt.Fprintln(w, "========================================")
}

func printPhases(w io.Writer, rep report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tRUNS\tTOTAL\tMEAN")
	for _, p := range rep.Phases {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.Phase, p.Count, seconds(p.TotalSeconds), seconds(p.MeanSeconds))
	}
	fmt.Fprintf(tw, "run\t1\t%s\t\n", seconds(rep.DurationSeconds))
	_ = tw.Flush()
	fmt.Fprintf(w, "neighbors/query: mean %.2f  p50 %.0f  p99 %.0f  empty %d\n",
		rep.Neighbors.Mean, rep.Neighbors.P50, rep.Neighbors.P99, rep.Neighbors.Empty)
}

func seconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond).String()
}
