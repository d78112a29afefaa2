package circuit

import "time"

// businessError is implemented by errors that represent a rejected
// but otherwise well-formed request (validation failures, 4xx
// responses) rather than an infrastructure failure. The Database and
// ExternalApi presets exclude these from circuit accounting entirely.
type businessError interface {
	CircuitExcluded() bool
}

func excludeBusinessErrors(err error) bool {
	if be, ok := err.(businessError); ok && be.CircuitExcluded() {
		return false
	}
	return err != nil
}

// Sensitive trips fast: 30% failure rate, minimum throughput 3, 30s
// window, 15s break, 2 Half-Open trials. Suited to requests where a
// few failures should fail the system closed quickly.
func Sensitive() Config {
	return Config{
		FailureThresholdPercentage: 30,
		MinimumThroughput:          3,
		SamplingDuration:           30 * time.Second,
		BreakDuration:              15 * time.Second,
		TrialRequestCount:          2,
	}
}

// Balanced is the default middle ground: 50%/5/60s/30s/3.
func Balanced() Config {
	return Config{
		FailureThresholdPercentage: 50,
		MinimumThroughput:          5,
		SamplingDuration:           60 * time.Second,
		BreakDuration:              30 * time.Second,
		TrialRequestCount:          3,
	}
}

// Resilient tolerates more failures before tripping: 70%/10/2min/1min/5.
func Resilient() Config {
	return Config{
		FailureThresholdPercentage: 70,
		MinimumThroughput:          10,
		SamplingDuration:           2 * time.Minute,
		BreakDuration:              time.Minute,
		TrialRequestCount:          5,
	}
}

// Database is tuned for datastore calls: 40%/5/1min/45s/2, and
// excludes business exceptions (e.g. constraint violations) from
// tripping the breaker.
func Database() Config {
	return Config{
		FailureThresholdPercentage: 40,
		MinimumThroughput:          5,
		SamplingDuration:           time.Minute,
		BreakDuration:              45 * time.Second,
		TrialRequestCount:          2,
		ShouldCountAsFailure:       excludeBusinessErrors,
	}
}

// ExternalApi is tuned for upstream HTTP dependencies: 60%/8/3min/60s/3,
// and excludes 4xx-class responses from tripping the breaker.
func ExternalApi() Config {
	return Config{
		FailureThresholdPercentage: 60,
		MinimumThroughput:          8,
		SamplingDuration:           3 * time.Minute,
		BreakDuration:              time.Minute,
		TrialRequestCount:          3,
		ShouldCountAsFailure:       excludeBusinessErrors,
	}
}
