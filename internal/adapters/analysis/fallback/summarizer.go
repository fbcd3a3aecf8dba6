// Package fallback renders a deterministic inventory report without any
// network call. It is the analysis backend of last resort.
package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
)

const Name = "fallback"

var recommendations = []string{
	"Review instance usage and consider stopping unused instances",
	"Check storage bucket permissions and encryption",
	"Monitor alert policies and ensure critical alerts are enabled",
	"Consider cost optimization strategies",
	"Implement proper tagging for better resource management",
}

var securityChecklist = []string{
	"**Enable CloudTrail** for audit logging",
	"**Review IAM policies** for least privilege access",
	"**Enable encryption** for all storage buckets",
	"**Set up monitoring** for critical resources",
	"**Regular security audits** of your infrastructure",
}

type Summarizer struct{}

var _ ports.Analyzer = Summarizer{}

func New() Summarizer {
	return Summarizer{}
}

func (Summarizer) Name() string {
	return Name
}

// Analyze ignores the question: the report is built from the snapshot counts.
func (Summarizer) Analyze(_ context.Context, req ports.AnalysisRequest) (string, error) {
	return Report(req.Snapshot), nil
}

func Report(snapshot domain.ResourceSnapshot) string {
	provider := strings.ToUpper(string(snapshot.Provider))
	if provider == "" {
		provider = "UNKNOWN"
	}
	account := string(snapshot.AccountID)
	if account == "" {
		account = "Unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s Infrastructure Analysis\n\n", provider)
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Provider: %s\n", provider)
	fmt.Fprintf(&b, "- Account: %s\n", account)

	if instances := snapshot.Instances; instances.Success {
		fmt.Fprintf(&b, "- Total Instances: %d\n", instances.Count)
		fmt.Fprintf(&b, "- Running: %d\n", instances.RunningCount)
		fmt.Fprintf(&b, "- Stopped: %d\n", instances.StoppedCount)
	} else {
		b.WriteString("- Instances: Error retrieving data\n")
	}

	if buckets := snapshot.Buckets; buckets.Success {
		fmt.Fprintf(&b, "- Storage Buckets: %d\n", buckets.Count)
		fmt.Fprintf(&b, "- Total Size: %.2f GB\n", buckets.TotalSizeGB)
		fmt.Fprintf(&b, "- Encrypted Buckets: %d\n", buckets.EncryptedBuckets)
		fmt.Fprintf(&b, "- Versioned Buckets: %d\n", buckets.VersionedBuckets)
	} else {
		b.WriteString("- Storage: Error retrieving data\n")
	}

	if alerts := snapshot.Alerts; alerts.Success {
		fmt.Fprintf(&b, "- Monitoring Alerts: %d\n", alerts.Count)
		fmt.Fprintf(&b, "- Enabled: %d\n", alerts.EnabledAlerts)
		fmt.Fprintf(&b, "- Disabled: %d\n", alerts.DisabledAlerts)
	} else {
		b.WriteString("- Alerts: Error retrieving data\n")
	}

	b.WriteString("\n---\n\n## Recommendations\n\n")
	for _, item := range recommendations {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	b.WriteString("\n---\n\n## Security Checklist\n\n")
	for i, item := range securityChecklist {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}

	return b.String()
}
