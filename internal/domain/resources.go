package domain

import "time"

// InstanceStatus values counted by the inventory aggregate.
const (
	InstanceRunning = "running"
	InstanceStopped = "stopped"
)

// AlarmStateAlarm is the only alarm state counted as enabled.
const AlarmStateAlarm = "ALARM"

const (
	EncryptionEnabled    = "Enabled"
	EncryptionNotEnabled = "NotEnabled"
	PlaceholderUnknown   = "Unknown"
)

type NetworkInterface struct {
	ID             string   `json:"id"`
	SubnetID       string   `json:"subnet_id"`
	VPCID          string   `json:"vpc_id"`
	PrivateIP      string   `json:"private_ip"`
	PublicIP       string   `json:"public_ip"`
	SecurityGroups []string `json:"security_groups"`
}

type BlockDevice struct {
	DeviceName          string `json:"device_name"`
	VolumeID            string `json:"volume_id"`
	DeleteOnTermination bool   `json:"delete_on_termination"`
}

type Instance struct {
	ID                 string             `json:"instance_id"`
	Name               string             `json:"name"`
	Type               string             `json:"instance_type"`
	CPUCores           int                `json:"cpu_cores"`
	MemoryGB           int                `json:"memory_gb"`
	Status             string             `json:"status"`
	Region             string             `json:"region"`
	AvailabilityZone   string             `json:"availability_zone"`
	LaunchTime         *time.Time         `json:"launch_time"`
	NetworkInterfaces  []NetworkInterface `json:"network_interfaces"`
	BlockDevices       []BlockDevice      `json:"block_devices"`
	Tags               map[string]string  `json:"tags"`
	Platform           string             `json:"platform"`
	Monitoring         string             `json:"monitoring"`
	IAMInstanceProfile string             `json:"iam_instance_profile"`
	EBSOptimized       bool               `json:"ebs_optimized"`
	RootDeviceType     string             `json:"root_device_type"`
	RootDeviceName     string             `json:"root_device_name"`
}

type Bucket struct {
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	Versioning  bool       `json:"versioning"`
	Encryption  string     `json:"encryption"`
	SizeBytes   int64      `json:"size_bytes"`
	SizeGB      float64    `json:"size_gb"`
	ObjectCount int64      `json:"object_count"`
	Created     *time.Time `json:"created"`
}

type Alarm struct {
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	MetricName         string     `json:"metric_name"`
	Namespace          string     `json:"namespace"`
	State              string     `json:"state"`
	StateReason        string     `json:"state_reason"`
	Actions            []string   `json:"actions"`
	Threshold          float64    `json:"threshold"`
	ComparisonOperator string     `json:"comparison_operator"`
	EvaluationPeriods  int32      `json:"evaluation_periods"`
	Period             int32      `json:"period"`
	Statistic          string     `json:"statistic"`
	TreatMissingData   string     `json:"treat_missing_data"`
	Updated            *time.Time `json:"created"`
}

// InstancesResult is the wire shape of list_instances. A failed call only
// carries Success=false and Error.
type InstancesResult struct {
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
	Instances    []Instance `json:"instances,omitempty"`
	Count        int        `json:"count"`
	RunningCount int        `json:"running_count"`
	StoppedCount int        `json:"stopped_count"`
}

func NewInstancesResult(instances []Instance) InstancesResult {
	result := InstancesResult{Success: true, Instances: instances, Count: len(instances)}
	for _, instance := range instances {
		switch instance.Status {
		case InstanceRunning:
			result.RunningCount++
		case InstanceStopped:
			result.StoppedCount++
		}
	}

	return result
}

type BucketsResult struct {
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	Buckets          []Bucket `json:"buckets,omitempty"`
	Count            int      `json:"count"`
	TotalSizeGB      float64  `json:"total_size_gb"`
	TotalObjects     int64    `json:"total_objects"`
	EncryptedBuckets int      `json:"encrypted_buckets"`
	VersionedBuckets int      `json:"versioned_buckets"`
}

func NewBucketsResult(buckets []Bucket) BucketsResult {
	result := BucketsResult{Success: true, Buckets: buckets, Count: len(buckets)}
	var totalBytes int64
	for _, bucket := range buckets {
		totalBytes += bucket.SizeBytes
		result.TotalObjects += bucket.ObjectCount
		if bucket.Encryption == EncryptionEnabled {
			result.EncryptedBuckets++
		}
		if bucket.Versioning {
			result.VersionedBuckets++
		}
	}
	result.TotalSizeGB = BytesToGB(totalBytes)

	return result
}

type AlertsResult struct {
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
	Alerts         []Alarm `json:"alerts,omitempty"`
	Count          int     `json:"count"`
	EnabledAlerts  int     `json:"enabled_alerts"`
	DisabledAlerts int     `json:"disabled_alerts"`
}

func NewAlertsResult(alarms []Alarm) AlertsResult {
	result := AlertsResult{Success: true, Alerts: alarms, Count: len(alarms)}
	for _, alarm := range alarms {
		if alarm.State == AlarmStateAlarm {
			result.EnabledAlerts++
		} else {
			result.DisabledAlerts++
		}
	}

	return result
}

// BytesToGB converts to GiB rounded to two decimals.
func BytesToGB(size int64) float64 {
	gb := float64(size) / (1024 * 1024 * 1024)
	return float64(int64(gb*100+0.5)) / 100
}
