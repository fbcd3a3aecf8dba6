package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/cloudwhisper/internal/domain"
)

// DefaultContextItems caps how many records per category reach the prompt.
const DefaultContextItems = 5

const notAvailable = "N/A"

// BuildContext renders snapshot as the bounded text handed to an analysis
// backend. Counters always cover the full inventory; only the per-item
// listing is cut to maxItems.
func BuildContext(snapshot domain.ResourceSnapshot, maxItems int) string {
	if maxItems <= 0 {
		maxItems = DefaultContextItems
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cloud Provider: %s\n", orNA(string(snapshot.Provider)))
	fmt.Fprintf(&b, "Account: %s\n", orNA(string(snapshot.AccountID)))
	fmt.Fprintf(&b, "Timestamp: %s\n\n", snapshot.CapturedAt.UTC().Format(time.RFC3339))

	writeInstances(&b, snapshot.Instances, maxItems)
	b.WriteString("\n")
	writeBuckets(&b, snapshot.Buckets, maxItems)
	b.WriteString("\n")
	writeAlerts(&b, snapshot.Alerts, maxItems)

	return strings.TrimRight(b.String(), "\n")
}

func writeInstances(b *strings.Builder, result domain.InstancesResult, maxItems int) {
	if !result.Success {
		b.WriteString("## Compute Instances: Error retrieving data\n")
		fmt.Fprintf(b, "Error: %s\n", orDefault(result.Error, "Unknown error"))
		return
	}

	fmt.Fprintf(b, "## Compute Instances (%d total)\n", result.Count)
	fmt.Fprintf(b, "- Running: %d\n", result.RunningCount)
	fmt.Fprintf(b, "- Stopped: %d\n", result.StoppedCount)

	for i, instance := range limit(result.Instances, maxItems) {
		fmt.Fprintf(b, "### Instance %d\n", i+1)
		fmt.Fprintf(b, "- ID: %s\n", orNA(instance.ID))
		fmt.Fprintf(b, "- Name: %s\n", orNA(instance.Name))
		fmt.Fprintf(b, "- Type: %s\n", orNA(instance.Type))
		fmt.Fprintf(b, "- Status: %s\n", orNA(instance.Status))
		fmt.Fprintf(b, "- Region: %s\n", orNA(instance.Region))
		for j, nic := range instance.NetworkInterfaces {
			fmt.Fprintf(b, "- Network Interface %d:\n", j+1)
			fmt.Fprintf(b, "  - Private IP: %s\n", orNA(nic.PrivateIP))
			fmt.Fprintf(b, "  - Public IP: %s\n", orNA(nic.PublicIP))
			fmt.Fprintf(b, "  - VPC ID: %s\n", orNA(nic.VPCID))
			fmt.Fprintf(b, "  - Subnet ID: %s\n", orNA(nic.SubnetID))
			fmt.Fprintf(b, "  - Security Groups: %s\n", strings.Join(nic.SecurityGroups, ", "))
		}
	}
}

func writeBuckets(b *strings.Builder, result domain.BucketsResult, maxItems int) {
	if !result.Success {
		b.WriteString("## Storage Buckets: Error retrieving data\n")
		fmt.Fprintf(b, "Error: %s\n", orDefault(result.Error, "Unknown error"))
		return
	}

	fmt.Fprintf(b, "## Storage Buckets (%d total)\n", result.Count)
	fmt.Fprintf(b, "- Total Size: %.2f GB\n", result.TotalSizeGB)
	fmt.Fprintf(b, "- Total Objects: %d\n", result.TotalObjects)
	fmt.Fprintf(b, "- Encrypted: %d\n", result.EncryptedBuckets)
	fmt.Fprintf(b, "- Versioned: %d\n", result.VersionedBuckets)

	for i, bucket := range limit(result.Buckets, maxItems) {
		fmt.Fprintf(b, "### Bucket %d\n", i+1)
		fmt.Fprintf(b, "- Name: %s\n", orNA(bucket.Name))
		fmt.Fprintf(b, "- Location: %s\n", orNA(bucket.Location))
		fmt.Fprintf(b, "- Size: %.2f GB\n", bucket.SizeGB)
		fmt.Fprintf(b, "- Objects: %d\n", bucket.ObjectCount)
		fmt.Fprintf(b, "- Encryption: %s\n", orNA(bucket.Encryption))
		fmt.Fprintf(b, "- Versioning: %t\n", bucket.Versioning)
	}
}

func writeAlerts(b *strings.Builder, result domain.AlertsResult, maxItems int) {
	if !result.Success {
		b.WriteString("## Monitoring Alerts: Error retrieving data\n")
		fmt.Fprintf(b, "Error: %s\n", orDefault(result.Error, "Unknown error"))
		return
	}

	fmt.Fprintf(b, "## Monitoring Alerts (%d total)\n", result.Count)
	fmt.Fprintf(b, "- Enabled: %d\n", result.EnabledAlerts)
	fmt.Fprintf(b, "- Disabled: %d\n", result.DisabledAlerts)

	for i, alarm := range limit(result.Alerts, maxItems) {
		fmt.Fprintf(b, "### Alert %d\n", i+1)
		fmt.Fprintf(b, "- Name: %s\n", orNA(alarm.Name))
		fmt.Fprintf(b, "- Metric: %s/%s\n", orNA(alarm.Namespace), orNA(alarm.MetricName))
		fmt.Fprintf(b, "- State: %s\n", orNA(alarm.State))
		if alarm.StateReason != "" {
			fmt.Fprintf(b, "- Reason: %s\n", alarm.StateReason)
		}
	}
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}

	return items
}

func orNA(value string) string {
	return orDefault(value, notAvailable)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
