package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/rtnn"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/search"
	"github.com/hupe1980/rtnn/sorter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// searchFlags holds the raw values of the search command flags.
type searchFlags struct {
	radius        float32
	k             int
	mode          string
	samePQ        bool
	partition     bool
	interleave    bool
	pointSort     string
	querySort     string
	linearAxis    string
	cellRatio     float32
	gasSort       string
	gasAxis       string
	gsrRatio      float32
	gather        bool
	reorderPoints bool
	batches       int
	e2e           bool
	deterministic bool
}

func (f *searchFlags) register(fs *pflag.FlagSet) {
	def := rtnn.DefaultConfig()
	fs.Float32VarP(&f.radius, "radius", "r", def.Radius, "Search radius")
	fs.IntVarP(&f.k, "k", "k", def.K, "Neighbors per query")
	fs.StringVar(&f.mode, "mode", def.Mode.String(), "Search mode (radius, knn)")
	fs.BoolVar(&f.samePQ, "samepq", false, "Search the point set against itself")
	fs.BoolVar(&f.partition, "partition", false, "Restrict the search to the active set (requires --samepq)")
	fs.BoolVar(&f.interleave, "interleave", false, "Run each phase for all batches before the next")
	fs.StringVar(&f.pointSort, "point-sort", def.PointSort.String(), "Point sort (none, morton, raster, linear)")
	fs.StringVar(&f.querySort, "query-sort", def.QuerySort.String(), "Query sort when queries differ from points")
	fs.StringVar(&f.linearAxis, "linear-axis", def.LinearAxis.String(), "Axis of the linear sort (x, y, z)")
	fs.Float32Var(&f.cellRatio, "cell-ratio", def.CellRatio, "Radius divided by grid cell size")
	fs.StringVar(&f.gasSort, "gas-sort", def.Reorder.String(), "First-hit query reorder (none, coordinate, id)")
	fs.StringVar(&f.gasAxis, "gas-axis", def.ReorderAxis.String(), "Axis of the coordinate reorder (x, y, z)")
	fs.Float32Var(&f.gsrRatio, "gsr-ratio", def.BuildRatio, "Radius divided by the reorder index radius")
	fs.BoolVar(&f.gather, "gather", false, "Materialize reordered queries")
	fs.BoolVar(&f.reorderPoints, "reorder-points", false, "Reorder points with the gathered queries")
	fs.IntVar(&f.batches, "batches", def.BatchCount, "Number of query batches")
	fs.BoolVar(&f.e2e, "e2e", false, "Synchronize only at the final barrier")
	fs.BoolVar(&f.deterministic, "deterministic", false, "Keep input order inside grid cells")
}

func parseAxis(flag, s string) (geom.Axis, error) {
	a, ok := geom.ParseAxis(s)
	if !ok {
		return 0, fmt.Errorf("invalid --%s %q", flag, s)
	}
	return a, nil
}

// config converts the flag values. Range checks are left to Config.Validate.
func (f *searchFlags) config() (rtnn.Config, error) {
	cfg := rtnn.Config{
		Radius:        f.radius,
		K:             f.k,
		SameSet:       f.samePQ,
		Partition:     f.partition,
		Interleave:    f.interleave,
		CellRatio:     f.cellRatio,
		BuildRatio:    f.gsrRatio,
		Gather:        f.gather,
		ReorderPoints: f.reorderPoints,
		BatchCount:    f.batches,
	}

	var err error
	if cfg.Mode, err = rtnn.ParseSearchMode(f.mode); err != nil {
		return cfg, err
	}
	if cfg.PointSort, err = sorter.ParseMode(f.pointSort); err != nil {
		return cfg, fmt.Errorf("--point-sort: %w", err)
	}
	if cfg.QuerySort, err = sorter.ParseMode(f.querySort); err != nil {
		return cfg, fmt.Errorf("--query-sort: %w", err)
	}
	if cfg.Reorder, err = search.ParseStrategy(f.gasSort); err != nil {
		return cfg, fmt.Errorf("--gas-sort: %w", err)
	}
	if cfg.LinearAxis, err = parseAxis("linear-axis", f.linearAxis); err != nil {
		return cfg, err
	}
	if cfg.ReorderAxis, err = parseAxis("gas-axis", f.gasAxis); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyConfigFile sets every flag named in the YAML file that was not given
// on the command line. Keys are flag names.
func applyConfigFile(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return applyConfig(cmd.Flags(), f)
}

func applyConfig(fs *pflag.FlagSet, r io.Reader) error {
	var values map[string]any
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return fmt.Errorf("config file: %w", err)
	}
	for key, v := range values {
		flag := fs.Lookup(key)
		if flag == nil {
			return fmt.Errorf("config file: unknown key %q", key)
		}
		if flag.Changed {
			continue
		}
		if err := fs.Set(key, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("config file: %s: %w", key, err)
		}
		// Set marks the flag changed; keep file values distinguishable.
		flag.Changed = false
	}
	return nil
}
