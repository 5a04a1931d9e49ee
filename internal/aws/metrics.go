package aws

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics emits counters to CloudWatch under a single namespace.
// Emission is best-effort: a failed put is logged, never propagated,
// so metrics can never fail an order operation.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics emitter bound to a namespace.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Incr adds 1 to the named counter.
func (m *Metrics) Incr(ctx context.Context, name string) {
	now := m.nowFunc()
	one := float64(1)
	input := &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Timestamp:  &now,
				Value:      &one,
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		log.Printf("metrics: put %s failed: %v", name, err)
	}
}
