// Package config loads arrbounds configuration from TOML files.
package config

import (
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Heuristics HeuristicsConfig `toml:"heuristics"`
	Allocators AllocatorsConfig `toml:"allocators"`
}

type HeuristicsConfig struct {
	// SizeWords are variable names treated as length-carrying regardless
	// of the pointer they sit next to.
	SizeWords []string `toml:"size_words"`
	// PrefixSuffixes are appended to a pointer's name when looking for its
	// companion length variable, e.g. buf -> buf_len.
	PrefixSuffixes []string `toml:"prefix_suffixes"`
	// NeighbourParams enables the pointer-parameter-followed-by-scalar
	// heuristic.
	NeighbourParams bool `toml:"neighbour_params"`
}

type AllocatorsConfig struct {
	// Count lists allocators whose first argument is an element count.
	Count []string `toml:"count"`
	// Impossible lists allocators whose results can never carry a bound,
	// e.g. strdup.
	Impossible []string `toml:"impossible"`
}

var defaultConfig = Config{
	Heuristics: HeuristicsConfig{
		SizeWords:       []string{"len", "length", "size", "count", "num", "n", "nmemb"},
		PrefixSuffixes:  []string{"_len", "len", "_length", "_size", "size", "_count", "_n", "_num"},
		NeighbourParams: true,
	},
	Allocators: AllocatorsConfig{
		Count:      []string{"malloc", "calloc", "realloc"},
		Impossible: []string{"strdup", "strndup"},
	},
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig
}

func normalizeList(list []string) []string {
	if len(list) > 1 {
		sort.Strings(list)
		nlist := make([]string, 0, len(list))
		nlist = append(nlist, list[0])
		for i, el := range list[1:] {
			if el != list[i] {
				nlist = append(nlist, el)
			}
		}
		list = nlist
	}
	return list
}

func (cfg Config) merge(ocfg Config, meta toml.MetaData) Config {
	if meta.IsDefined("heuristics", "size_words") {
		cfg.Heuristics.SizeWords = normalizeList(ocfg.Heuristics.SizeWords)
	}
	if meta.IsDefined("heuristics", "prefix_suffixes") {
		cfg.Heuristics.PrefixSuffixes = normalizeList(ocfg.Heuristics.PrefixSuffixes)
	}
	if meta.IsDefined("heuristics", "neighbour_params") {
		cfg.Heuristics.NeighbourParams = ocfg.Heuristics.NeighbourParams
	}
	if meta.IsDefined("allocators", "count") {
		cfg.Allocators.Count = normalizeList(ocfg.Allocators.Count)
	}
	if meta.IsDefined("allocators", "impossible") {
		cfg.Allocators.Impossible = normalizeList(ocfg.Allocators.Impossible)
	}
	return cfg
}

// Load reads the configuration at path and merges it over the defaults.
// Only keys present in the file override the defaults.
func Load(path string) (Config, error) {
	var ocfg Config
	meta, err := toml.DecodeFile(path, &ocfg)
	if err != nil {
		return Config{}, err
	}
	return defaultConfig.merge(ocfg, meta), nil
}

// Parse is like Load but reads from a byte slice.
func Parse(data []byte) (Config, error) {
	var ocfg Config
	meta, err := toml.Decode(string(data), &ocfg)
	if err != nil {
		return Config{}, err
	}
	return defaultConfig.merge(ocfg, meta), nil
}

// LoadIfExists loads path when it exists and falls back to the defaults
// otherwise.
func LoadIfExists(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, err
	}
	return Load(path)
}
