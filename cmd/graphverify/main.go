// Command graphverify drives the round protocol end-to-end: it loads a
// graph dataset, bootstraps the AA-MHT pair and Cuckoo-filter index,
// signs the initial aggregate root, then runs a configured number of
// addition/deletion/query rounds, reporting the outcome of each.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/certen/graphverify/pkg/cachestore"
	"github.com/certen/graphverify/pkg/config"
	"github.com/certen/graphverify/pkg/graphdata"
	"github.com/certen/graphverify/pkg/graphmodel"
	"github.com/certen/graphverify/pkg/obslog"
	"github.com/certen/graphverify/pkg/obsmetrics"
	"github.com/certen/graphverify/pkg/round"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run())
}

// selectQueryTarget picks the element a query round asks about. A nonzero
// queryID names a subgraph pattern: it seeds its own rng so the same query
// id always samples the same neighborhood of the current graph, then
// returns one of that neighborhood's edges. A zero queryID falls back to
// picking uniformly at random from the whole graph, drawing from the
// caller's rng so successive zero-query rounds still vary.
func selectQueryTarget(graph *graphdata.Graph, queryID int, rng *rand.Rand) graphmodel.Element {
	if queryID == 0 {
		return graph.Edges[rng.Intn(len(graph.Edges))]
	}
	patternRng := rand.New(rand.NewSource(int64(queryID) * 1000003))
	sub := graphdata.SampleSubgraph(graph, 8, patternRng)
	if len(sub.Edges) == 0 {
		return graph.Edges[rng.Intn(len(graph.Edges))]
	}
	return sub.Edges[patternRng.Intn(len(sub.Edges))]
}

func run() int {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file (optional)")
		datasetFlag = flag.String("dataset", "", "path to an edge-list dataset file, overrides config")
		initRatio   = flag.Float64("init-ratio", 1.0, "fraction of the dataset's edges (0,1] to load before streaming the rest in as update rounds")
		scale       = flag.Int("scale", 0, "absolute edge count for the initial load, overrides init-ratio when positive")
		batchSize   = flag.Int("batch-size", 0, "elements per update round, overrides config (0 = use config value)")
		tsSize      = flag.Int("ts-size", 0, "decoy set size (|S| per round), overrides config (0 = use config value)")
		queryID     = flag.Int("query", 0, "deterministic seed selecting the query subgraph pattern (0 = uniformly random each round)")
		roundsFlag  = flag.Int("rounds", 0, "number of rounds to run, overrides config (0 = use config value)")
		interval    = flag.Int("interval", 0, "rounds between query rounds, overrides config (0 = use config value)")
		cacheDir    = flag.String("cache-dir", "", "round-state cache directory, overrides config")
		logLevel    = flag.String("log-level", "", "debug, info, warn, or error, overrides config")
		logFormat   = flag.String("log-format", "", "text or json, overrides config")
	)
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphverify: %v\n", err)
		return 1
	}
	cfg.ApplyEnv()

	if *datasetFlag != "" {
		cfg.DatasetPath = *datasetFlag
	}
	if *roundsFlag > 0 {
		cfg.Rounds = *roundsFlag
	}
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}
	if *tsSize > 0 {
		cfg.DecoySetSize = *tsSize
	}
	if *interval > 0 {
		cfg.QueryInterval = *interval
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "graphverify: invalid configuration: %v\n", err)
		return 1
	}

	level, err := obslog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger, err := obslog.NewLogger(&obslog.Config{Level: level, Format: cfg.LogFormat, Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphverify: logger: %v\n", err)
		return 1
	}
	obslog.SetGlobal(logger)

	full, err := graphdata.Load(cfg.DatasetPath)
	if err != nil {
		logger.Error("failed to load dataset", obslog.Field{Key: "error", Value: err.Error()})
		return 1
	}
	graph, reserve := graphdata.Split(full, *initRatio, *scale)
	logger.Info("dataset loaded",
		obslog.Field{Key: "nodes", Value: len(graph.Nodes)},
		obslog.Field{Key: "edges", Value: len(graph.Edges)},
		obslog.Field{Key: "reserved_for_streaming", Value: len(reserve)},
	)

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		logger.Error("failed to create cache directory", obslog.Field{Key: "error", Value: err.Error()})
		return 1
	}
	store, err := cachestore.Open("round-state", cfg.CacheDir)
	if err != nil {
		logger.Error("failed to open cache store", obslog.Field{Key: "error", Value: err.Error()})
		return 1
	}
	defer store.Close()

	metrics := obsmetrics.New(prometheus.DefaultRegisterer)

	engine, err := round.Bootstrap(cfg, graph, store, metrics, logger)
	if err != nil {
		logger.Error("bootstrap failed", obslog.Field{Key: "error", Value: err.Error()})
		return 1
	}
	logger.Info("bootstrap complete", obslog.Field{Key: "root", Value: engine.CurrentRoot().String()})

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	failures := 0

	for i := 1; i <= cfg.Rounds; i++ {
		var additions []graphmodel.Element
		if len(reserve) > 0 {
			n := cfg.BatchSize
			if n > len(reserve) {
				n = len(reserve)
			}
			additions, reserve = reserve[:n], reserve[n:]
		}
		deletions := []graphmodel.Element(nil)
		if len(additions) == 0 {
			synthetic := graphdata.GenerateUpdate(graph, cfg.BatchSize, rng)
			additions = synthetic.Additions
			deletions = synthetic.Deletions
		}

		if len(additions) > 0 {
			if _, err := engine.RunUpdateRound(round.KindAddition, additions); err != nil {
				logger.Error("addition round failed", obslog.Field{Key: "round", Value: i}, obslog.Field{Key: "error", Value: err.Error()})
				failures++
			}
			graph.Edges = append(graph.Edges, additions...)
		}
		if len(deletions) > 0 {
			if _, err := engine.RunUpdateRound(round.KindDeletion, deletions); err != nil {
				logger.Error("deletion round failed", obslog.Field{Key: "round", Value: i}, obslog.Field{Key: "error", Value: err.Error()})
				failures++
			}
		}

		if i%cfg.QueryInterval == 0 && len(graph.Edges) > 0 {
			sample := selectQueryTarget(graph, *queryID, rng)
			report, err := engine.RunQueryRound([]graphmodel.Element{sample})
			if err != nil {
				logger.Error("query round failed",
					obslog.Field{Key: "round", Value: i},
					obslog.Field{Key: "integrity_ok", Value: report.IntegrityOK},
					obslog.Field{Key: "freshness_ok", Value: report.FreshnessOK},
					obslog.Field{Key: "correctness_ok", Value: report.CorrectnessOK},
				)
				failures++
			}
		}
	}

	if failures > 0 {
		logger.Error("run completed with failures", obslog.Field{Key: "failures", Value: failures})
		return 1
	}
	logger.Info("run completed successfully", obslog.Field{Key: "final_round", Value: engine.Round()})
	return 0
}
