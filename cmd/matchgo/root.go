package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/matchgo"
	"github.com/hupe1980/matchgo/matcher"
	"github.com/hupe1980/matchgo/progress"
)

func newRootCommand() *cobra.Command {
	flagCfg := defaultConfig()

	var configFlag string

	cmd := &cobra.Command{
		Use:   "matchgo",
		Short: "Compute putative feature matches between image pairs",
		Long: `Compute putative feature correspondences between the image pairs of a
multi-view reconstruction dataset.

The scene catalog names the views, the pair list names the pairs to evaluate,
and the region files produced by feature extraction are expected next to the
output file. Matches are filtered with the nearest/second-nearest distance
ratio test and persisted for downstream geometric verification.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}

			applyFlagOverrides(cmd, &cfg, flagCfg)

			return run(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&flagCfg.InputFile, "input_file", "i", flagCfg.InputFile, "path to the scene catalog (JSON)")
	flags.StringVarP(&flagCfg.OutputFile, "output_file", "o", flagCfg.OutputFile, "path of the match table to produce (.txt or .bin)")
	flags.StringVarP(&flagCfg.PairList, "pair_list", "p", flagCfg.PairList, "path to the pair list")
	flags.Float64VarP(&flagCfg.Ratio, "ratio", "r", flagCfg.Ratio, "nearest/second-nearest distance ratio in (0, 1]")
	flags.StringVarP(&flagCfg.Method, "nearest_matching_method", "n", flagCfg.Method,
		"matching method: AUTO, exact-L2, exact-Hamming, approx-tree-L2, approx-graph-L2, cascade-hash-L2, cascade-hash-precomputed-L2")
	flags.BoolVarP(&flagCfg.Force, "force", "f", flagCfg.Force, "recompute even when the output file exists")
	flags.UintVarP(&flagCfg.CacheSize, "cache_size", "c", flagCfg.CacheSize, "max resident views, 0 loads everything up front")
	flags.IntVar(&flagCfg.Workers, "workers", flagCfg.Workers, "concurrent pairs, 0 uses all CPUs")
	flags.StringVar(&flagCfg.LogLevel, "log_level", flagCfg.LogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&flagCfg.LogFormat, "log_format", flagCfg.LogFormat, "log format: text, json")
	flags.StringVar(&configFlag, "config", "", "TOML file of flag defaults")

	return cmd
}

func run(cmd *cobra.Command, cfg config) error {
	method, err := matcher.ParseMethod(cfg.Method)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	p, err := matchgo.New(cfg.InputFile, cfg.OutputFile, cfg.PairList,
		matchgo.WithMethod(method),
		matchgo.WithRatio(cfg.Ratio),
		matchgo.WithForce(cfg.Force),
		matchgo.WithCacheSize(cfg.CacheSize),
		matchgo.WithWorkers(cfg.Workers),
		matchgo.WithLogger(logger),
		matchgo.WithNotifier(progress.NewLogNotifier(logger.Logger, "matching", time.Second/4)),
	)
	if err != nil {
		return err
	}

	result, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d matches in %d of %d pairs (%s)\n",
		cfg.OutputFile, result.State, result.TotalMatches, result.MatchedPairs,
		result.Pairs, result.Elapsed.Round(time.Millisecond))

	return nil
}

func newLogger(level, format string) (*matchgo.Logger, error) {
	var lvl slog.Level

	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	switch strings.ToLower(format) {
	case "text":
		return matchgo.NewTextLogger(lvl), nil
	case "json":
		return matchgo.NewJSONLogger(lvl), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
