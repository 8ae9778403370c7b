// Package config provides the runtime parameters of the engine. Parameters
// are loaded once and then passed explicitly to the components that need
// them.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables that override parameters
const EnvPrefix = "TRIGOFED_"

// Defaults
const (
	DefaultServiceMaxValueRows = 100
	DefaultServiceFragmentRows = 1000
	DefaultResultCacheMaxCost  = 1 << 20
	DefaultVocabPath           = "./trigofed_vocab"
)

// RuntimeParameters holds the tunables consulted during query execution.
type RuntimeParameters struct {
	// CacheServiceResults makes SERVICE results cacheable by their clause
	// text. Sibling precomputation is disabled while it is on.
	CacheServiceResults bool `koanf:"cache_service_results"`

	// SyntaxTestMode skips all network I/O; SERVICE returns the neutral
	// element.
	SyntaxTestMode bool `koanf:"syntax_test_mode"`

	// ServiceMaxValueRows is the largest sibling result that is pushed into
	// a SERVICE query as a VALUES clause.
	ServiceMaxValueRows int `koanf:"service_max_value_rows"`

	// ServiceFragmentRows caps the number of bindings per decoded fragment.
	ServiceFragmentRows int `koanf:"service_fragment_rows"`

	// ServiceTimeout bounds a single remote request, 0 means no timeout.
	ServiceTimeout time.Duration `koanf:"service_timeout"`

	// AllocationLimitCells caps the number of Ids held by result tables,
	// 0 means unlimited.
	AllocationLimitCells int64 `koanf:"allocation_limit_cells"`

	// ResultCacheMaxCost is the capacity of the result cache in Ids.
	ResultCacheMaxCost int64 `koanf:"result_cache_max_cost"`

	VocabPath string `koanf:"vocab_path"`
	LogLevel  string `koanf:"log_level"`
}

// Default returns the parameters used when nothing is configured
func Default() RuntimeParameters {
	return RuntimeParameters{
		ServiceMaxValueRows: DefaultServiceMaxValueRows,
		ServiceFragmentRows: DefaultServiceFragmentRows,
		ResultCacheMaxCost:  DefaultResultCacheMaxCost,
		VocabPath:           DefaultVocabPath,
		LogLevel:            "info",
	}
}

func defaultsMap() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"cache_service_results":  d.CacheServiceResults,
		"syntax_test_mode":       d.SyntaxTestMode,
		"service_max_value_rows": d.ServiceMaxValueRows,
		"service_fragment_rows":  d.ServiceFragmentRows,
		"service_timeout":        d.ServiceTimeout.String(),
		"allocation_limit_cells": d.AllocationLimitCells,
		"result_cache_max_cost":  d.ResultCacheMaxCost,
		"vocab_path":             d.VocabPath,
		"log_level":              d.LogLevel,
	}
}

// Load builds the parameters from, in increasing priority: defaults, the
// YAML file at path (if non-empty), TRIGOFED_* environment variables and
// explicitly set flags.
func Load(path string, flags *pflag.FlagSet) (RuntimeParameters, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return RuntimeParameters{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return RuntimeParameters{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return RuntimeParameters{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// TRIGOFED_SERVICE_MAX_VALUE_ROWS -> service_max_value_rows
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return RuntimeParameters{}, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return RuntimeParameters{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var params RuntimeParameters
	if err := k.UnmarshalWithConf("", &params, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return RuntimeParameters{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := params.Validate(); err != nil {
		return RuntimeParameters{}, err
	}
	return params, nil
}

// Validate checks that the parameters are usable
func (p RuntimeParameters) Validate() error {
	if p.ServiceMaxValueRows < 0 {
		return fmt.Errorf("service_max_value_rows must not be negative, got %d", p.ServiceMaxValueRows)
	}
	if p.ServiceFragmentRows <= 0 {
		return fmt.Errorf("service_fragment_rows must be positive, got %d", p.ServiceFragmentRows)
	}
	if p.AllocationLimitCells < 0 {
		return fmt.Errorf("allocation_limit_cells must not be negative, got %d", p.AllocationLimitCells)
	}
	if p.ServiceTimeout < 0 {
		return fmt.Errorf("service_timeout must not be negative, got %s", p.ServiceTimeout)
	}
	return nil
}

// RegisterFlags adds a flag per parameter to fs. Flags only override the
// other sources when they are set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Bool("cache-service-results", d.CacheServiceResults, "cache SERVICE results by their clause text")
	fs.Bool("syntax-test-mode", d.SyntaxTestMode, "skip network I/O, SERVICE returns the neutral result")
	fs.Int("service-max-value-rows", d.ServiceMaxValueRows, "largest sibling result pushed into a SERVICE as VALUES")
	fs.Int("service-fragment-rows", d.ServiceFragmentRows, "bindings per decoded fragment of a SERVICE response")
	fs.Duration("service-timeout", d.ServiceTimeout, "timeout of a single SERVICE request, 0 for none")
	fs.Int64("allocation-limit-cells", d.AllocationLimitCells, "maximum number of Ids held by result tables, 0 for unlimited")
	fs.Int64("result-cache-max-cost", d.ResultCacheMaxCost, "capacity of the result cache in Ids")
	fs.String("vocab-path", d.VocabPath, "directory of the vocabulary database")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
}
