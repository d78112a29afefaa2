package reporter

import "time"

// HighPerformance: 5s check interval, 10s stall threshold, minimum
// throughput 1000 items/s, 1% max error rate.
func HighPerformance() Config {
	return Config{
		HealthCheckInterval:             5 * time.Second,
		StallDetectionThreshold:         10 * time.Second,
		MinimumThroughputItemsPerSecond: 1000,
		MaximumErrorRate:                0.01,
	}
}

// DataProcessing: 30s/120s/50 items/s/5%.
func DataProcessing() Config {
	return Config{
		HealthCheckInterval:             30 * time.Second,
		StallDetectionThreshold:         120 * time.Second,
		MinimumThroughputItemsPerSecond: 50,
		MaximumErrorRate:                0.05,
	}
}

// LongRunning: 60s/300s/10 items/s/10%.
func LongRunning() Config {
	return Config{
		HealthCheckInterval:             60 * time.Second,
		StallDetectionThreshold:         300 * time.Second,
		MinimumThroughputItemsPerSecond: 10,
		MaximumErrorRate:                0.10,
	}
}

// RealTime: 2s/5s/100 items/s/0.1%.
func RealTime() Config {
	return Config{
		HealthCheckInterval:             2 * time.Second,
		StallDetectionThreshold:         5 * time.Second,
		MinimumThroughputItemsPerSecond: 100,
		MaximumErrorRate:                0.001,
	}
}

// Development: 10s/30s/1 item/s/20%. Loose thresholds suited to a
// local run where pauses in a debugger shouldn't register as a
// stall.
func Development() Config {
	return Config{
		HealthCheckInterval:             10 * time.Second,
		StallDetectionThreshold:         30 * time.Second,
		MinimumThroughputItemsPerSecond: 1,
		MaximumErrorRate:                0.20,
	}
}
