package domain

import "time"

// ResourceSnapshot is the per-turn inventory view. It is rebuilt for every
// question and never mutated after assembly.
type ResourceSnapshot struct {
	Instances  InstancesResult
	Buckets    BucketsResult
	Alerts     AlertsResult
	Provider   ProviderID
	AccountID  AccountID
	CapturedAt time.Time
}

// FailedInstances builds the placeholder used when a tool call
// could not be completed or decoded.
func FailedInstances(message string) InstancesResult {
	return InstancesResult{Success: false, Error: message}
}

func FailedBuckets(message string) BucketsResult {
	return BucketsResult{Success: false, Error: message}
}

func FailedAlerts(message string) AlertsResult {
	return AlertsResult{Success: false, Error: message}
}
