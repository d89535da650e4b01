// Package config resolves BlinkDB's startup configuration from flags, an
// optional .env file and an optional yaml tuning file, in that order of
// precedence, the way the teacher's config package layers flags over
// godotenv (SPEC_FULL.md §2/§6).
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"blinkdb/internal/engine"
)

// Config is the resolved startup configuration for cmd/blinkdb-server.
type Config struct {
	Port       int
	Dir        string
	ConfigPath string
	Engine     engine.Config
}

const defaultDir = "blinkdb_data"

// Load parses args (normally os.Args[1:]) plus the environment and an
// optional tuning file, returning flag.ErrHelp unchanged when --help/-h was
// requested so the caller can exit 0 rather than treat it as a failure.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("blinkdb-server", flag.ContinueOnError)
	port := fs.Int("port", 6380, "TCP port the Redis-compatible adapter listens on")
	dir := fs.String("dir", defaultDir, "database directory")
	memoryMB := fs.Int("memory", 0, "memtable flush threshold in MiB (0 = engine default)")
	configPath := fs.String("config", "", "path to an optional blinkdb.yaml tuning file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// A missing .env is not an error; godotenv.Load only wires values in
	// when the file exists.
	_ = godotenv.Load()

	cfg := Config{Port: *port, Dir: *dir, ConfigPath: *configPath}
	if v := os.Getenv("BLINKDB_DIR"); v != "" && *dir == defaultDir {
		cfg.Dir = v
	}
	if v := os.Getenv("BLINKDB_PORT"); v != "" && *port == 6380 {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}

	tuning, err := loadTuning(resolveTuningPath(*configPath, cfg.Dir))
	if err != nil {
		return Config{}, err
	}
	cfg.Engine = tuning
	if *memoryMB > 0 {
		cfg.Engine.MemtableMaxBytes = *memoryMB * 1024 * 1024
	}
	return cfg, nil
}

func resolveTuningPath(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dir, "blinkdb.yaml")
}

// yamlTuning mirrors engine.Config's fields for the on-disk tuning file,
// per SPEC_FULL.md §6.
type yamlTuning struct {
	MemtableMaxBytes       int    `yaml:"memtable_max_bytes"`
	LevelCount             int    `yaml:"level_count"`
	L0CompactionThreshold  int    `yaml:"l0_compaction_threshold"`
	LevelSizeRatio         int    `yaml:"level_size_ratio"`
	CacheCapacity          int    `yaml:"cache_capacity"`
	BloomBitsPerEntry      uint64 `yaml:"bloom_bits_per_entry"`
	BloomHashCount         uint8  `yaml:"bloom_hash_count"`
}

func (y yamlTuning) toEngineConfig() engine.Config {
	return engine.Config{
		MemtableMaxBytes:  y.MemtableMaxBytes,
		LevelCount:        y.LevelCount,
		L0Threshold:       y.L0CompactionThreshold,
		LevelSizeRatio:    y.LevelSizeRatio,
		CacheCapacity:     y.CacheCapacity,
		BloomBitsPerEntry: y.BloomBitsPerEntry,
		BloomHashCount:    y.BloomHashCount,
	}
}

// loadTuning returns zero-value engine defaults when the file is absent —
// absence is a clean start, not an error, matching the engine's own
// WAL-absence handling.
func loadTuning(path string) (engine.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return engine.Config{}, nil
		}
		return engine.Config{}, fmt.Errorf("config: read tuning file %s: %w", path, err)
	}
	var y yamlTuning
	if err := yaml.Unmarshal(data, &y); err != nil {
		return engine.Config{}, fmt.Errorf("config: parse tuning file %s: %w", path, err)
	}
	return y.toEngineConfig(), nil
}
