package metrics

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"
)

const defaultNamespace = "UMA/Settlement"

// putMetricDataAPI is the slice of the CloudWatch client the publisher needs.
type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher sends each counter increment to CloudWatch as a PutMetricData call.
type CloudWatchPublisher struct {
	client    putMetricDataAPI
	namespace string
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewCloudWatchPublisher loads the default AWS configuration for region (falling back to AWS_REGION) and returns a
// publisher writing to namespace.
func NewCloudWatchPublisher(ctx context.Context, region, namespace string, log logrus.FieldLogger) (*CloudWatchPublisher, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return newCloudWatchPublisher(cloudwatch.NewFromConfig(cfg), namespace, log), nil
}

func newCloudWatchPublisher(client putMetricDataAPI, namespace string, log logrus.FieldLogger) *CloudWatchPublisher {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
		timeout:   2 * time.Second,
		log:       log.WithField("component", "cloudwatch"),
	}
}

func (p *CloudWatchPublisher) Count(ctx context.Context, name string, value float64, dims Dimensions) {
	// The request context may already be done by the time a handler reports.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: aws.String(name),
			Dimensions: toDimensions(dims),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(value),
		}},
	}
	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.log.WithError(err).WithField("metric", name).Warn("failed to publish CloudWatch metric")
	}
}

func toDimensions(dims Dimensions) []cwtypes.Dimension {
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]cwtypes.Dimension, 0, len(names))
	for _, name := range names {
		out = append(out, cwtypes.Dimension{Name: aws.String(name), Value: aws.String(dims[name])})
	}
	return out
}
