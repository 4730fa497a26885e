package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/hupe1980/matchgo/matcher"
)

// config carries every knob of the command. Values are resolved in three
// layers: built-in defaults, then the optional TOML file, then any flag set
// on the command line.
type config struct {
	InputFile  string  `toml:"input_file"`
	OutputFile string  `toml:"output_file"`
	PairList   string  `toml:"pair_list"`
	Ratio      float64 `toml:"ratio"`
	Method     string  `toml:"nearest_matching_method"`
	Force      bool    `toml:"force"`
	CacheSize  uint    `toml:"cache_size"`
	Workers    int     `toml:"workers"`
	LogLevel   string  `toml:"log_level"`
	LogFormat  string  `toml:"log_format"`
}

func defaultConfig() config {
	return config{
		Ratio:     matcher.DefaultOptions.Ratio,
		Method:    matcher.MethodAuto.String(),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// applyFlagOverrides copies every flag set on the command line over the
// config file's values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config, flagCfg config) {
	overrides := map[string]func(){
		"input_file":              func() { cfg.InputFile = flagCfg.InputFile },
		"output_file":             func() { cfg.OutputFile = flagCfg.OutputFile },
		"pair_list":               func() { cfg.PairList = flagCfg.PairList },
		"ratio":                   func() { cfg.Ratio = flagCfg.Ratio },
		"nearest_matching_method": func() { cfg.Method = flagCfg.Method },
		"force":                   func() { cfg.Force = flagCfg.Force },
		"cache_size":              func() { cfg.CacheSize = flagCfg.CacheSize },
		"workers":                 func() { cfg.Workers = flagCfg.Workers },
		"log_level":               func() { cfg.LogLevel = flagCfg.LogLevel },
		"log_format":              func() { cfg.LogFormat = flagCfg.LogFormat },
	}

	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}
