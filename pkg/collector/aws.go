package collector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/costwatch/cost-advisor/pkg/models"
	"github.com/costwatch/cost-advisor/pkg/resilience"
)

// AWSCollector implements CostProvider and ResourceCollector against the
// AWS APIs. Cost Explorer is a global service pinned to us-east-1; the
// per-resource clients are created for whichever region is being scanned.
type AWSCollector struct {
	cfg aws.Config
	log *zap.Logger
}

// NewAWS loads the default credential chain and returns a collector.
func NewAWS(ctx context.Context, log *zap.Logger) (*AWSCollector, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return &AWSCollector{cfg: cfg, log: log}, nil
}

func (c *AWSCollector) Name() string { return "aws" }

// AccountID resolves the caller's account via STS, for run metadata.
func (c *AWSCollector) AccountID(ctx context.Context) (string, error) {
	out, err := sts.NewFromConfig(c.cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", resilience.Transient("sts get-caller-identity", err)
	}
	return aws.ToString(out.Account), nil
}

// FetchCostSnapshot queries Cost Explorer for the last 30 days of
// unblended cost grouped by service.
func (c *AWSCollector) FetchCostSnapshot(ctx context.Context, region string) (models.CostSnapshot, error) {
	client := costexplorer.NewFromConfig(c.cfg, func(o *costexplorer.Options) {
		o.Region = "us-east-1"
	})

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	out, err := client.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
		Filter: &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionRegion,
				Values: []string{region},
			},
		},
	})
	if err != nil {
		return models.CostSnapshot{}, resilience.Transient("cost explorer get-cost-and-usage", err)
	}

	snapshot := models.CostSnapshot{
		Region:    region,
		Window:    end.Sub(start),
		FetchedAt: time.Now().UTC(),
	}
	byService := map[string]float64{}
	for _, result := range out.ResultsByTime {
		for _, group := range result.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			metric, ok := group.Metrics["UnblendedCost"]
			if !ok {
				continue
			}
			amount, err := strconv.ParseFloat(aws.ToString(metric.Amount), 64)
			if err != nil {
				c.log.Warn("unparseable cost amount",
					zap.String("service", group.Keys[0]),
					zap.String("amount", aws.ToString(metric.Amount)))
				continue
			}
			byService[group.Keys[0]] += amount
			snapshot.TotalCost += amount
		}
	}
	for service, cost := range byService {
		snapshot.ByService = append(snapshot.ByService, models.ServiceCost{ServiceName: service, Cost: cost})
	}
	sort.Slice(snapshot.ByService, func(i, j int) bool {
		if snapshot.ByService[i].Cost != snapshot.ByService[j].Cost {
			return snapshot.ByService[i].Cost > snapshot.ByService[j].Cost
		}
		return snapshot.ByService[i].ServiceName < snapshot.ByService[j].ServiceName
	})
	return snapshot, nil
}

// CollectResources inventories EC2 instances, RDS databases, load
// balancers and Lambda functions in one region, attaching each one's
// metric series over the window.
func (c *AWSCollector) CollectResources(ctx context.Context, region string, window time.Duration) ([]models.ResourceRecord, error) {
	cw := cloudwatch.NewFromConfig(c.cfg, func(o *cloudwatch.Options) { o.Region = region })

	var resources []models.ResourceRecord

	instances, err := c.collectInstances(ctx, region, cw, window)
	if err != nil {
		return nil, err
	}
	resources = append(resources, instances...)

	databases, err := c.collectDatabases(ctx, region, cw, window)
	if err != nil {
		return nil, err
	}
	resources = append(resources, databases...)

	balancers, err := c.collectLoadBalancers(ctx, region, cw, window)
	if err != nil {
		return nil, err
	}
	resources = append(resources, balancers...)

	functions, err := c.collectFunctions(ctx, region, cw, window)
	if err != nil {
		return nil, err
	}
	resources = append(resources, functions...)

	c.log.Info("collected resources",
		zap.String("region", region),
		zap.Int("count", len(resources)))
	return resources, nil
}

func (c *AWSCollector) collectInstances(ctx context.Context, region string, cw *cloudwatch.Client, window time.Duration) ([]models.ResourceRecord, error) {
	client := ec2.NewFromConfig(c.cfg, func(o *ec2.Options) { o.Region = region })

	var records []models.ResourceRecord
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, resilience.Transient("ec2 describe-instances", err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				id := aws.ToString(instance.InstanceId)
				cpu, err := c.metricSeries(ctx, cw, models.MetricCPUUtilization,
					"AWS/EC2", "CPUUtilization", "InstanceId", id, "Average", window)
				if err != nil {
					return nil, err
				}
				records = append(records, models.ResourceRecord{
					ID:            id,
					Kind:          models.KindCompute,
					Region:        region,
					Configuration: string(instance.InstanceType),
					Labels:        ec2TagMap(instance.Tags),
					Metrics: map[string]models.MetricSeries{
						models.MetricCPUUtilization: cpu,
					},
				})
			}
		}
	}
	return records, nil
}

func (c *AWSCollector) collectDatabases(ctx context.Context, region string, cw *cloudwatch.Client, window time.Duration) ([]models.ResourceRecord, error) {
	client := rds.NewFromConfig(c.cfg, func(o *rds.Options) { o.Region = region })

	var records []models.ResourceRecord
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, resilience.Transient("rds describe-db-instances", err)
		}
		for _, db := range page.DBInstances {
			id := aws.ToString(db.DBInstanceIdentifier)
			cpu, err := c.metricSeries(ctx, cw, models.MetricCPUUtilization,
				"AWS/RDS", "CPUUtilization", "DBInstanceIdentifier", id, "Average", window)
			if err != nil {
				return nil, err
			}
			connections, err := c.metricSeries(ctx, cw, models.MetricConnections,
				"AWS/RDS", "DatabaseConnections", "DBInstanceIdentifier", id, "Sum", window)
			if err != nil {
				return nil, err
			}
			records = append(records, models.ResourceRecord{
				ID:            id,
				Kind:          models.KindDatabase,
				Region:        region,
				Configuration: aws.ToString(db.DBInstanceClass),
				Metrics: map[string]models.MetricSeries{
					models.MetricCPUUtilization: cpu,
					models.MetricConnections:    connections,
				},
			})
		}
	}
	return records, nil
}

func (c *AWSCollector) collectLoadBalancers(ctx context.Context, region string, cw *cloudwatch.Client, window time.Duration) ([]models.ResourceRecord, error) {
	client := elasticloadbalancingv2.NewFromConfig(c.cfg, func(o *elasticloadbalancingv2.Options) { o.Region = region })

	var records []models.ResourceRecord
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, resilience.Transient("elbv2 describe-load-balancers", err)
		}
		for _, lb := range page.LoadBalancers {
			arn := aws.ToString(lb.LoadBalancerArn)
			requests, err := c.metricSeries(ctx, cw, models.MetricRequestCount,
				"AWS/ApplicationELB", "RequestCount", "LoadBalancer", lbDimension(arn), "Sum", window)
			if err != nil {
				return nil, err
			}
			records = append(records, models.ResourceRecord{
				ID:            aws.ToString(lb.LoadBalancerName),
				Kind:          models.KindLoadBalancer,
				Region:        region,
				Configuration: string(lb.Type),
				Metrics: map[string]models.MetricSeries{
					models.MetricRequestCount: requests,
				},
			})
		}
	}
	return records, nil
}

func (c *AWSCollector) collectFunctions(ctx context.Context, region string, cw *cloudwatch.Client, window time.Duration) ([]models.ResourceRecord, error) {
	client := lambda.NewFromConfig(c.cfg, func(o *lambda.Options) { o.Region = region })

	var records []models.ResourceRecord
	paginator := lambda.NewListFunctionsPaginator(client, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, resilience.Transient("lambda list-functions", err)
		}
		for _, fn := range page.Functions {
			name := aws.ToString(fn.FunctionName)
			invocations, err := c.metricSeries(ctx, cw, models.MetricInvocations,
				"AWS/Lambda", "Invocations", "FunctionName", name, "Sum", window)
			if err != nil {
				return nil, err
			}
			records = append(records, models.ResourceRecord{
				ID:            name,
				Kind:          models.KindFunction,
				Region:        region,
				Configuration: fmt.Sprintf("%dMB", aws.ToInt32(fn.MemorySize)),
				Metrics: map[string]models.MetricSeries{
					models.MetricInvocations: invocations,
				},
			})
		}
	}
	return records, nil
}

// metricSeries pulls one hourly metric series from CloudWatch and sorts
// it by timestamp.
func (c *AWSCollector) metricSeries(
	ctx context.Context,
	cw *cloudwatch.Client,
	seriesName, namespace, metricName, dimensionName, dimensionValue, stat string,
	window time.Duration,
) (models.MetricSeries, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	out, err := cw.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		StartTime: aws.Time(start),
		EndTime:   aws.Time(end),
		MetricDataQueries: []cwtypes.MetricDataQuery{
			{
				Id: aws.String("m0"),
				MetricStat: &cwtypes.MetricStat{
					Metric: &cwtypes.Metric{
						Namespace:  aws.String(namespace),
						MetricName: aws.String(metricName),
						Dimensions: []cwtypes.Dimension{
							{Name: aws.String(dimensionName), Value: aws.String(dimensionValue)},
						},
					},
					Period: aws.Int32(3600),
					Stat:   aws.String(stat),
				},
			},
		},
	})
	if err != nil {
		return models.MetricSeries{}, resilience.Transient("cloudwatch get-metric-data", err)
	}

	series := models.MetricSeries{Name: seriesName}
	for _, result := range out.MetricDataResults {
		for i := range result.Values {
			if i >= len(result.Timestamps) {
				break
			}
			series.Samples = append(series.Samples, models.Sample{
				Timestamp: result.Timestamps[i],
				Value:     result.Values[i],
			})
		}
	}
	sort.Slice(series.Samples, func(i, j int) bool {
		return series.Samples[i].Timestamp.Before(series.Samples[j].Timestamp)
	})
	return series, nil
}

// lbDimension extracts the CloudWatch dimension value from a load
// balancer ARN: everything after "loadbalancer/".
func lbDimension(arn string) string {
	const marker = "loadbalancer/"
	if idx := strings.Index(arn, marker); idx >= 0 {
		return arn[idx+len(marker):]
	}
	return arn
}

func ec2TagMap(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[strings.ToLower(aws.ToString(tag.Key))] = aws.ToString(tag.Value)
	}
	return labels
}
