package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/bnema/cloudwhisper/internal/domain"
)

func (c *Client) MonitoringAlerts(ctx context.Context) domain.AlertsResult {
	session := c.snapshot().session

	var alarms []domain.Alarm
	paginator := cloudwatch.NewDescribeAlarmsPaginator(session.CloudWatch, &cloudwatch.DescribeAlarmsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("describe alarms failed")
			return domain.FailedAlerts(err.Error())
		}
		for _, alarm := range page.MetricAlarms {
			alarms = append(alarms, toAlarm(alarm))
		}
	}

	return domain.NewAlertsResult(alarms)
}

func toAlarm(in cwtypes.MetricAlarm) domain.Alarm {
	actions := make([]string, 0, len(in.AlarmActions)+len(in.OKActions))
	actions = append(actions, in.AlarmActions...)
	actions = append(actions, in.OKActions...)

	return domain.Alarm{
		Name:               awssdk.ToString(in.AlarmName),
		Description:        awssdk.ToString(in.AlarmDescription),
		MetricName:         awssdk.ToString(in.MetricName),
		Namespace:          awssdk.ToString(in.Namespace),
		State:              string(in.StateValue),
		StateReason:        awssdk.ToString(in.StateReason),
		Actions:            actions,
		Threshold:          awssdk.ToFloat64(in.Threshold),
		ComparisonOperator: string(in.ComparisonOperator),
		EvaluationPeriods:  awssdk.ToInt32(in.EvaluationPeriods),
		Period:             awssdk.ToInt32(in.Period),
		Statistic:          string(in.Statistic),
		TreatMissingData:   awssdk.ToString(in.TreatMissingData),
		Updated:            in.AlarmConfigurationUpdatedTimestamp,
	}
}
