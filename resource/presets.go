package resource

import "time"

const (
	mb = 1 << 20
	gb = 1 << 30
)

// MemoryConstrained: 256 MB threshold, 5 MB/s growth rate, Aggressive
// cleanup, 15s interval.
func MemoryConstrained() Config {
	return Config{
		MaxMemoryThresholdBytes:                 256 * mb,
		MemoryGrowthRateThresholdBytesPerSecond: 5 * mb,
		Intensity:                               Aggressive,
		MonitoringInterval:                      15 * time.Second,
	}
}

// HighPerformance: 1 GB threshold, 50 MB/s growth rate, Conservative
// cleanup, 60s interval.
func HighPerformance() Config {
	return Config{
		MaxMemoryThresholdBytes:                 gb,
		MemoryGrowthRateThresholdBytesPerSecond: 50 * mb,
		Intensity:                               Conservative,
		MonitoringInterval:                      60 * time.Second,
	}
}

// Balanced: 512 MB threshold, 10 MB/s growth rate, Balanced cleanup,
// 30s interval.
func Balanced() Config {
	return Config{
		MaxMemoryThresholdBytes:                 512 * mb,
		MemoryGrowthRateThresholdBytesPerSecond: 10 * mb,
		Intensity:                               Balanced,
		MonitoringInterval:                      30 * time.Second,
	}
}

// Development: 2 GB threshold, 100 MB/s growth rate, Conservative
// cleanup, 10s interval. DetailedStats is on, so Monitor.History keeps
// every breach snapshot for diagnostics.
func Development() Config {
	cfg := Config{
		MaxMemoryThresholdBytes:                 2 * gb,
		MemoryGrowthRateThresholdBytesPerSecond: 100 * mb,
		Intensity:                               Conservative,
		MonitoringInterval:                      10 * time.Second,
		DetailedStats:                           true,
	}
	return cfg
}
