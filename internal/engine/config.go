package engine

// Config carries the engine's tunable thresholds. Zero-value fields are
// filled with spec.md's defaults by WithDefaults, so callers only need to
// set the handful they want to override (e.g. from a yaml tuning file).
type Config struct {
	MemtableMaxBytes int
	LevelCount       int
	L0Threshold      int
	LevelSizeRatio   int
	CacheCapacity    int
	BloomBitsPerEntry uint64
	BloomHashCount    uint8
	CompactionInterval int // seconds
	MaxConcurrentWorkers int64
}

// WithDefaults returns a copy of c with every zero field replaced by the
// built-in default from spec.md.
func (c Config) WithDefaults() Config {
	if c.MemtableMaxBytes <= 0 {
		c.MemtableMaxBytes = memtableMaxBytes
	}
	if c.LevelCount <= 0 {
		c.LevelCount = defaultLevelCount
	}
	if c.L0Threshold <= 0 {
		c.L0Threshold = l0CompactionThreshold
	}
	if c.LevelSizeRatio <= 0 {
		c.LevelSizeRatio = levelSizeRatio
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = cacheCapacity
	}
	if c.BloomBitsPerEntry <= 0 {
		c.BloomBitsPerEntry = defaultBloomBitsPerEntry
	}
	if c.BloomHashCount <= 0 {
		c.BloomHashCount = defaultBloomHashCount
	}
	if c.CompactionInterval <= 0 {
		c.CompactionInterval = compactionIntervalSeconds
	}
	if c.MaxConcurrentWorkers <= 0 {
		c.MaxConcurrentWorkers = defaultMaxConcurrentWorkers
	}
	return c
}

// threshold returns the table-count trigger for level idx under this
// config: L0 uses L0Threshold, every deeper level uses LevelSizeRatio.
func (c Config) threshold(idx int) int {
	if idx == 0 {
		return c.L0Threshold
	}
	return c.LevelSizeRatio
}
