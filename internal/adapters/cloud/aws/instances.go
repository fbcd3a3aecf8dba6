package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/bnema/cloudwhisper/internal/domain"
)

func (c *Client) ListInstances(ctx context.Context) domain.InstancesResult {
	session := c.snapshot().session

	var instances []domain.Instance
	paginator := ec2.NewDescribeInstancesPaginator(session.EC2, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("describe instances failed")
			return domain.FailedInstances(err.Error())
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				instances = append(instances, toInstance(instance, session.Region))
			}
		}
	}

	return domain.NewInstancesResult(instances)
}

func toInstance(in ec2types.Instance, region string) domain.Instance {
	instanceType := string(in.InstanceType)
	if instanceType == "" {
		instanceType = "unknown"
	}

	tags := make(map[string]string, len(in.Tags))
	for _, tag := range in.Tags {
		tags[awssdk.ToString(tag.Key)] = awssdk.ToString(tag.Value)
	}
	name := tags["Name"]
	if name == "" {
		name = "Unnamed"
	}

	out := domain.Instance{
		ID:                awssdk.ToString(in.InstanceId),
		Name:              name,
		Type:              instanceType,
		CPUCores:          instanceCPUCores(instanceType),
		MemoryGB:          instanceMemoryGB(instanceType),
		Region:            region,
		LaunchTime:        in.LaunchTime,
		NetworkInterfaces: make([]domain.NetworkInterface, 0, len(in.NetworkInterfaces)),
		BlockDevices:      make([]domain.BlockDevice, 0, len(in.BlockDeviceMappings)),
		Tags:              tags,
		Platform:          string(in.Platform),
		EBSOptimized:      awssdk.ToBool(in.EbsOptimized),
		RootDeviceType:    string(in.RootDeviceType),
		RootDeviceName:    awssdk.ToString(in.RootDeviceName),
	}
	if in.State != nil {
		out.Status = string(in.State.Name)
	}
	if in.Placement != nil {
		out.AvailabilityZone = awssdk.ToString(in.Placement.AvailabilityZone)
	}
	if in.Monitoring != nil {
		out.Monitoring = string(in.Monitoring.State)
	}
	if in.IamInstanceProfile != nil {
		out.IAMInstanceProfile = awssdk.ToString(in.IamInstanceProfile.Arn)
	}

	for _, ni := range in.NetworkInterfaces {
		iface := domain.NetworkInterface{
			ID:             awssdk.ToString(ni.NetworkInterfaceId),
			SubnetID:       awssdk.ToString(ni.SubnetId),
			VPCID:          awssdk.ToString(ni.VpcId),
			PrivateIP:      awssdk.ToString(ni.PrivateIpAddress),
			SecurityGroups: make([]string, 0, len(ni.Groups)),
		}
		if ni.Association != nil {
			iface.PublicIP = awssdk.ToString(ni.Association.PublicIp)
		}
		for _, group := range ni.Groups {
			iface.SecurityGroups = append(iface.SecurityGroups, awssdk.ToString(group.GroupName))
		}
		out.NetworkInterfaces = append(out.NetworkInterfaces, iface)
	}

	for _, bdm := range in.BlockDeviceMappings {
		device := domain.BlockDevice{DeviceName: awssdk.ToString(bdm.DeviceName)}
		if bdm.Ebs != nil {
			device.VolumeID = awssdk.ToString(bdm.Ebs.VolumeId)
			device.DeleteOnTermination = awssdk.ToBool(bdm.Ebs.DeleteOnTermination)
		}
		out.BlockDevices = append(out.BlockDevices, device)
	}

	return out
}
