// Package traffic reads the request count that drives the control loop.
package traffic

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/cuemby/elbscaler/pkg/types"
)

// Source reports request count sums over a time window. An empty result
// means no traffic was recorded in the window.
type Source interface {
	Query(ctx context.Context, start, end time.Time) ([]types.Sample, error)
}

// CloudWatchAPI is the subset of the CloudWatch client used here
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CloudWatchConfig selects the metric to read
type CloudWatchConfig struct {
	Namespace        string
	MetricName       string
	LoadBalancerName string
	Period           time.Duration
}

// CloudWatchSource reads the ELB RequestCount metric
type CloudWatchSource struct {
	client CloudWatchAPI
	cfg    CloudWatchConfig
}

// NewCloudWatchSource creates a metrics source for one load balancer
func NewCloudWatchSource(client CloudWatchAPI, cfg CloudWatchConfig) *CloudWatchSource {
	if cfg.Namespace == "" {
		cfg.Namespace = "AWS/ELB"
	}
	if cfg.MetricName == "" {
		cfg.MetricName = "RequestCount"
	}
	if cfg.Period < time.Minute {
		cfg.Period = time.Minute
	}
	return &CloudWatchSource{client: client, cfg: cfg}
}

// Query returns the per-period Sum datapoints, oldest first
func (s *CloudWatchSource) Query(ctx context.Context, start, end time.Time) ([]types.Sample, error) {
	out, err := s.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(s.cfg.Namespace),
		MetricName: aws.String(s.cfg.MetricName),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("LoadBalancerName"), Value: aws.String(s.cfg.LoadBalancerName)},
		},
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(int32(s.cfg.Period / time.Second)),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticSum},
		Unit:       cwtypes.StandardUnitCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s/%s: %w", s.cfg.Namespace, s.cfg.MetricName, err)
	}

	samples := make([]types.Sample, 0, len(out.Datapoints))
	for _, dp := range out.Datapoints {
		if dp.Sum == nil || dp.Timestamp == nil {
			continue
		}
		samples = append(samples, types.Sample{Timestamp: *dp.Timestamp, Sum: *dp.Sum})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}
