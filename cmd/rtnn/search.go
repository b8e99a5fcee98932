package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/rtnn"
	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/dataset"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/internal/resource"
	"github.com/spf13/cobra"
)

var (
	searchOpts searchFlags

	searchConfigFile  string
	searchOut         string
	searchCodec       string
	searchReport      string
	searchMetricsFile string
	searchVerify      int
	searchSeed        uint64
	searchQuiet       bool

	searchMemLimit int64
	searchIORate   int64
	searchStreams  int64
	searchWorkers  int
)

var searchCmd = &cobra.Command{
	Use:   "search <points> [queries]",
	Short: "Search a point set",
	Long: `Search the neighbors of every query within the radius.

Datasets are local paths, s3://bucket/key or minio://host/bucket/key.
Without a queries argument the points double as the queries. --samepq
searches them as one shared set, which enables --partition.

Examples:
  rtnn search -r 2 -k 50 bunny.rtnn
  rtnn search --mode radius --samepq --partition bunny.rtnn
  rtnn search --batches 4 --interleave points.rtnn queries.xyz
  rtnn search --config run.yaml --verify 100 s3://datasets/bunny.rtnn`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	fs := searchCmd.Flags()
	searchOpts.register(fs)
	fs.StringVar(&searchConfigFile, "config", "", "YAML file with flag values; flags take precedence")
	fs.StringVarP(&searchOut, "out", "o", "", "Write neighbor ids in input order to this result file")
	fs.StringVar(&searchCodec, "codec", "zstd", "Result file codec (none, lz4, zstd)")
	fs.StringVar(&searchReport, "report", "", "Write a JSON report to this file (- for stdout)")
	fs.StringVar(&searchMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	fs.IntVar(&searchVerify, "verify", 0, "Check this many sampled rows against a brute-force scan")
	fs.Uint64Var(&searchSeed, "seed", 1, "Seed for --verify sampling")
	fs.BoolVarP(&searchQuiet, "quiet", "q", false, "Do not print the banner and timings")
	fs.Int64Var(&searchMemLimit, "mem-limit", 0, "Device memory budget in bytes (0 = unlimited)")
	fs.Int64Var(&searchIORate, "io-rate", 0, "Dataset read limit in bytes per second (0 = unlimited)")
	fs.Int64Var(&searchStreams, "streams", 0, "Streams executing at once (0 = unlimited)")
	fs.IntVar(&searchWorkers, "workers", 0, "Worker goroutines (0 = GOMAXPROCS)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchConfigFile != "" {
		if err := applyConfigFile(cmd, searchConfigFile); err != nil {
			return err
		}
	}
	if searchOpts.samePQ && len(args) == 2 {
		return errors.New("--samepq takes a single dataset")
	}

	cfg, err := searchOpts.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	codec, err := dataset.ParseCodec(searchCodec)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := resource.NewController(resource.Config{
		DeviceMemoryBytes: searchMemLimit,
		MaxActiveStreams:  searchStreams,
		IOBytesPerSec:     searchIORate,
	})

	points, err := load(ctx, args[0], rc)
	if err != nil {
		return err
	}
	queries := points
	if len(args) == 2 {
		if queries, err = load(ctx, args[1], rc); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if searchQuiet {
		out = io.Discard
	}
	printBanner(out, cfg, len(points), len(queries))

	var metrics rtnn.MetricsCollector = rtnn.NoopMetricsCollector{}
	var prom *promCollector
	if searchMetricsFile != "" {
		prom = newPromCollector()
		metrics = prom
	}

	opts := []rtnn.Option{
		rtnn.WithProvider(device.NewCPU(func(o *device.CPUOptions) {
			o.Resources = rc
			if searchWorkers > 0 {
				o.Workers = searchWorkers
			}
		})),
		rtnn.WithLogger(logger),
		rtnn.WithMetricsCollector(metrics),
	}
	if searchOpts.e2e {
		opts = append(opts, rtnn.WithEndToEnd())
	}
	if searchOpts.deterministic {
		opts = append(opts, rtnn.WithDeterministicSort())
	}

	s, err := rtnn.NewSearcher(cfg, opts...)
	if err != nil {
		return err
	}

	var q []geom.Vec3
	if !cfg.SameSet {
		q = queries
	}
	res, runErr := s.Run(ctx, points, q)
	if prom != nil {
		if err := prom.WriteTextfile(searchMetricsFile); err != nil {
			return errors.Join(runErr, fmt.Errorf("write metrics: %w", err))
		}
	}
	if runErr != nil {
		return runErr
	}

	rep := newReport(cfg, res, len(queries))
	if searchVerify > 0 {
		v := verify(res, cfg.Mode, searchVerify, searchSeed)
		rep.Verify = &v
	}
	printPhases(out, rep)

	if searchOut != "" {
		if err := saveRows(ctx, searchOut, res, len(queries), cfg.K, codec); err != nil {
			return err
		}
	}
	if searchReport != "" {
		if err := saveReport(cmd.OutOrStdout(), searchReport, rep); err != nil {
			return err
		}
	}

	if rep.Verify != nil {
		fmt.Fprintf(out, "verify: %d/%d rows match\n", rep.Verify.Sampled-rep.Verify.Mismatches, rep.Verify.Sampled)
		if rep.Verify.Mismatches > 0 {
			for _, msg := range rep.Verify.Examples {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
			return fmt.Errorf("verification failed: %d of %d rows differ", rep.Verify.Mismatches, rep.Verify.Sampled)
		}
	}
	return nil
}

func load(ctx context.Context, location string, rc *resource.Controller) ([]geom.Vec3, error) {
	store, name, err := openStore(ctx, location)
	if err != nil {
		return nil, err
	}
	var opts []dataset.Option
	if searchIORate > 0 {
		opts = append(opts, dataset.WithResources(rc))
	}
	return dataset.Load(ctx, store, name, opts...)
}

// inputRows lays the results out as one row per input query, with neighbor
// ids referring to input points. Queries outside the active set keep empty
// rows.
func inputRows(res *rtnn.Result, queries, width int) dataset.Rows {
	ids := make([]uint32, queries*width)
	for i := range ids {
		ids[i] = backend.NoNeighbor
	}
	for bi := range res.Batches {
		b := &res.Batches[bi]
		for row := range b.Len() {
			dst := ids[int(b.QueryIndex[row])*width:][:width]
			for j, id := range b.Row(row)[:min(width, b.Limit)] {
				if id != backend.NoNeighbor {
					dst[j] = res.PointIndex[id]
				}
			}
		}
	}
	return dataset.Rows{Width: width, IDs: ids}
}

func saveRows(ctx context.Context, location string, res *rtnn.Result, queries, width int, codec dataset.Codec) error {
	store, name, err := openStore(ctx, location)
	if err != nil {
		return err
	}
	return dataset.SaveRows(ctx, store, name, inputRows(res, queries, width), dataset.WithCodec(codec))
}

func saveReport(stdout io.Writer, path string, rep report) error {
	if path == "-" {
		return writeJSON(stdout, rep)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, rep); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
